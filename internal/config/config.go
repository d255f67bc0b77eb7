package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/vango-dev/sqmean/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "sqmean.json"

	// DefaultPort is the default service port.
	DefaultPort = 64000

	// DefaultServerHost is the default bind address.
	DefaultServerHost = "0.0.0.0"

	// DefaultClientHost is the default address the client dials.
	DefaultClientHost = "127.0.0.1"
)

// Known enum values.
var (
	Stores     = []string{"file", "memory", "sqlite", "s3"}
	Formats    = []string{"concat", "lines"}
	Policies   = []string{"fail-open", "halt"}
	LogLevels  = []string{"debug", "info", "warn", "error"}
	LogFormats = []string{"text", "json"}
)

// Config represents the complete sqmean.json configuration.
type Config struct {
	// Server contains the listener and registry settings.
	Server ServerConfig `json:"server"`

	// Dump contains persistence settings.
	Dump DumpConfig `json:"dump"`

	// Client contains reference client settings.
	Client ClientConfig `json:"client"`

	// Admin contains the admin HTTP endpoint settings.
	Admin AdminConfig `json:"admin"`

	// Log contains logging settings.
	Log LogConfig `json:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains server settings.
type ServerConfig struct {
	// Port is the TCP port to listen on.
	Port int `json:"port,omitempty"`

	// Host is the interface to bind.
	Host string `json:"host,omitempty"`

	// Tick is the registry polling period (e.g., "1ms").
	Tick string `json:"tick,omitempty"`

	// ErrorPolicy is "fail-open" or "halt".
	ErrorPolicy string `json:"errorPolicy,omitempty"`

	// RetentionTTL evicts aggregates of closed connections (e.g., "10m").
	// "0s" keeps them forever.
	RetentionTTL string `json:"retentionTTL,omitempty"`
}

// DumpConfig contains persistence settings.
type DumpConfig struct {
	// Interval is the snapshot and flush cadence (e.g., "5s").
	Interval string `json:"interval,omitempty"`

	// Store is one of file, memory, sqlite, s3.
	Store string `json:"store,omitempty"`

	// Dir is the directory for .dmp files.
	Dir string `json:"dir,omitempty"`

	// Format is "concat" or "lines".
	Format string `json:"format,omitempty"`

	// S3 configures the s3 store.
	S3 S3Config `json:"s3"`

	// SQL configures the sqlite store.
	SQL SQLConfig `json:"sql"`
}

// S3Config configures the s3 dump store.
type S3Config struct {
	Bucket   string `json:"bucket,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// SQLConfig configures the sqlite dump store.
type SQLConfig struct {
	Driver string `json:"driver,omitempty"`
	DSN    string `json:"dsn,omitempty"`
	Table  string `json:"table,omitempty"`
}

// ClientConfig contains reference client settings.
type ClientConfig struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
	Pause    string `json:"pause,omitempty"`
}

// AdminConfig contains the admin HTTP endpoint settings.
type AdminConfig struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr string `json:"addr,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
	File   string `json:"file,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         DefaultPort,
			Host:         DefaultServerHost,
			Tick:         "1ms",
			ErrorPolicy:  "fail-open",
			RetentionTTL: "0s",
		},
		Dump: DumpConfig{
			Interval: "5s",
			Store:    "file",
			Dir:      ".",
			Format:   "concat",
			SQL: SQLConfig{
				Driver: "sqlite3",
				DSN:    "dumps.db",
				Table:  "sqmean_dumps",
			},
		},
		Client: ClientConfig{
			Host:     DefaultClientHost,
			Port:     DefaultPort,
			Attempts: 3,
			Pause:    "1ms",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads sqmean.json from dir. A missing file is not an error: the
// defaults are returned.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	if !Exists(dir) {
		cfg := New()
		cfg.configPath = path
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("E040").
			WithSource(path).
			WithSuggestion("Check the path passed to --config").
			Wrap(err)
	}

	cfg := New()
	if err := sonnet.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E040").
			WithSource(path).
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check that the file is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()
	cfg.Normalize()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := sonnet.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E047").Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E047").WithSource(path).Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()

	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Tick == "" {
		c.Server.Tick = d.Server.Tick
	}
	if c.Server.ErrorPolicy == "" {
		c.Server.ErrorPolicy = d.Server.ErrorPolicy
	}
	if c.Server.RetentionTTL == "" {
		c.Server.RetentionTTL = d.Server.RetentionTTL
	}

	if c.Dump.Interval == "" {
		c.Dump.Interval = d.Dump.Interval
	}
	if c.Dump.Store == "" {
		c.Dump.Store = d.Dump.Store
	}
	if c.Dump.Dir == "" {
		c.Dump.Dir = d.Dump.Dir
	}
	if c.Dump.Format == "" {
		c.Dump.Format = d.Dump.Format
	}
	if c.Dump.SQL.Driver == "" {
		c.Dump.SQL.Driver = d.Dump.SQL.Driver
	}
	if c.Dump.SQL.DSN == "" {
		c.Dump.SQL.DSN = d.Dump.SQL.DSN
	}
	if c.Dump.SQL.Table == "" {
		c.Dump.SQL.Table = d.Dump.SQL.Table
	}

	if c.Client.Host == "" {
		c.Client.Host = d.Client.Host
	}
	if c.Client.Port == 0 {
		c.Client.Port = d.Client.Port
	}
	if c.Client.Attempts == 0 {
		c.Client.Attempts = d.Client.Attempts
	}
	if c.Client.Pause == "" {
		c.Client.Pause = d.Client.Pause
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Normalize lowercases the enum-valued settings so that later exact
// comparisons see the canonical spelling.
func (c *Config) Normalize() {
	for _, v := range []*string{
		&c.Server.ErrorPolicy,
		&c.Dump.Store,
		&c.Dump.Format,
		&c.Log.Level,
		&c.Log.Format,
	} {
		*v = strings.ToLower(strings.TrimSpace(*v))
	}
}

// Validate normalizes the configuration and checks that it is valid.
func (c *Config) Validate() error {
	c.Normalize()

	src := c.configPath
	if src == "" {
		src = ConfigFileName
	}

	ports := []struct {
		name  string
		value int
	}{
		{"server.port", c.Server.Port},
		{"client.port", c.Client.Port},
	}
	for _, p := range ports {
		if p.value < 1 || p.value > 65535 {
			return errors.New("E041").
				WithSource(src).
				WithDetail(p.name + " must be between 1 and 65535")
		}
	}

	durations := []struct {
		name     string
		value    string
		positive bool
	}{
		{"server.tick", c.Server.Tick, true},
		{"server.retentionTTL", c.Server.RetentionTTL, false},
		{"dump.interval", c.Dump.Interval, true},
		{"client.pause", c.Client.Pause, true},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil || v < 0 || (d.positive && v == 0) {
			return errors.New("E042").
				WithSource(src).
				WithDetail(d.name + " has invalid duration " + quote(d.value))
		}
	}

	if !oneOf(c.Dump.Store, Stores) {
		return errors.New("E043").WithSource(src).
			WithSuggestion("Use one of: " + strings.Join(Stores, ", "))
	}
	if !oneOf(c.Dump.Format, Formats) {
		return errors.New("E044").WithSource(src)
	}
	if !oneOf(c.Server.ErrorPolicy, Policies) {
		return errors.New("E045").WithSource(src)
	}
	if !oneOf(c.Log.Level, LogLevels) || !oneOf(c.Log.Format, LogFormats) {
		return errors.New("E046").WithSource(src)
	}
	if c.Client.Attempts < 1 {
		return errors.New("E048").WithSource(src)
	}
	if c.Dump.Store == "s3" && (c.Dump.S3.Bucket == "" || c.Dump.S3.Region == "") {
		return errors.New("E022").
			WithSource(src).
			WithExample(`"dump": {"store": "s3", "s3": {"bucket": "dumps", "region": "eu-west-1"}}`)
	}
	return nil
}

// Tick returns the parsed server tick.
func (c *Config) Tick() time.Duration { return mustDuration(c.Server.Tick) }

// RetentionTTL returns the parsed retention TTL.
func (c *Config) RetentionTTL() time.Duration { return mustDuration(c.Server.RetentionTTL) }

// DumpInterval returns the parsed dump interval.
func (c *Config) DumpInterval() time.Duration { return mustDuration(c.Dump.Interval) }

// ClientPause returns the parsed client pause.
func (c *Config) ClientPause() time.Duration { return mustDuration(c.Client.Pause) }

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// mustDuration parses a validated duration; invalid input yields 0.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func oneOf(v string, allowed []string) bool {
	return slices.Contains(allowed, v)
}

func quote(s string) string {
	return `"` + s + `"`
}
