package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Transport Errors (E001-E019)
	// ============================================

	"E001": {
		Category: CategoryTransport,
		Message:  "Cannot listen on address",
		Detail:   "The server could not bind its TCP port. Another process may already be listening on it, or the port may require elevated privileges.",
	},
	"E002": {
		Category: CategoryTransport,
		Message:  "Cannot reach server",
		Detail:   "The client could not connect to the server address.",
	},
	"E003": {
		Category: CategoryTransport,
		Message:  "Attempt budget exhausted",
		Detail:   "Every allowed attempt failed with an I/O error, so the client loop ended.",
	},

	// ============================================
	// Persistence Errors (E020-E039)
	// ============================================

	"E020": {
		Category: CategoryPersistence,
		Message:  "Dump directory not usable",
		Detail:   "The directory for .dmp files could not be created or written.",
	},
	"E021": {
		Category: CategoryPersistence,
		Message:  "SQL store unavailable",
		Detail:   "The database for the sql dump store could not be opened or its table could not be created.",
	},
	"E022": {
		Category: CategoryPersistence,
		Message:  "S3 store misconfigured",
		Detail:   "The s3 dump store needs a bucket and a region.",
	},
	"E023": {
		Category: CategoryPersistence,
		Message:  "Final dump flush incomplete",
		Detail:   "The dump worker did not finish its final flush before the shutdown timeout. Some snapshots may not have been written.",
	},

	// ============================================
	// Config Errors (E040-E059)
	// ============================================

	"E040": {
		Category: CategoryConfig,
		Message:  "Invalid config file",
		Detail:   "sqmean.json could not be read or is not valid JSON.",
	},
	"E041": {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "Ports must be between 1 and 65535.",
	},
	"E042": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   "Durations use Go syntax such as 1ms, 5s or 10m and must not be negative.",
	},
	"E043": {
		Category: CategoryConfig,
		Message:  "Unknown dump store",
		Detail:   "Supported stores are file, memory, sqlite and s3.",
	},
	"E044": {
		Category: CategoryConfig,
		Message:  "Unknown dump format",
		Detail:   "Supported formats are concat and lines.",
	},
	"E045": {
		Category: CategoryConfig,
		Message:  "Unknown error policy",
		Detail:   "Supported policies are fail-open and halt.",
	},
	"E046": {
		Category: CategoryConfig,
		Message:  "Invalid logging settings",
		Detail:   "Log level must be debug, info, warn or error, and format must be text or json.",
	},
	"E047": {
		Category: CategoryConfig,
		Message:  "Cannot write config file",
		Detail:   "sqmean.json could not be written.",
	},
	"E048": {
		Category: CategoryConfig,
		Message:  "Invalid attempt budget",
		Detail:   "The client attempt budget must be at least 1.",
	},

	// ============================================
	// CLI Errors (E060-E079)
	// ============================================

	"E060": {
		Category: CategoryCLI,
		Message:  "Invalid flag value",
		Detail:   "A command-line flag has a value that cannot be used.",
	},
	"E061": {
		Category: CategoryCLI,
		Message:  "Admin server failed",
		Detail:   "The admin HTTP server could not start.",
	},
	"E062": {
		Category: CategoryCLI,
		Message:  "Cannot open log file",
		Detail:   "The log file could not be created or opened for appending.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
