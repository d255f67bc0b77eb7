package server

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/vango-dev/sqmean/pkg/conn"
	"github.com/vango-dev/sqmean/pkg/dump"
)

// DefaultPort is the port the server listens on when none is configured.
const DefaultPort = 64000

// Config holds server configuration.
type Config struct {
	// Host is the interface to bind.
	// Default: "0.0.0.0"
	Host string

	// Port is the TCP port used by Run. Start takes its port explicitly, so
	// callers wanting a free port call Start(0).
	// Default: 64000
	Port int

	// Tick is the registry polling period.
	// Default: 1ms
	Tick time.Duration

	// DumpInterval is how often aggregates are snapshotted and flushed.
	// Default: 5s
	DumpInterval time.Duration

	// DumpDir is where the default FileStore writes "<id>.dmp" files.
	// Ignored when a store is supplied with WithStore.
	// Default: working directory
	DumpDir string

	// DumpFormat is the file format of the default FileStore.
	// Default: dump.FormatConcat
	DumpFormat dump.Format

	// ErrorPolicy decides how non-reset transport errors are treated.
	// Default: conn.FailOpen
	ErrorPolicy conn.ErrorPolicy

	// RetentionTTL evicts aggregates of closed connections after this long.
	// Default: 0 (retain forever)
	RetentionTTL time.Duration

	// ShutdownTimeout bounds the final dump flush in Stop.
	// Default: 30 seconds
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            DefaultPort,
		Tick:            time.Millisecond,
		DumpInterval:    dump.DefaultInterval,
		DumpDir:         ".",
		DumpFormat:      dump.FormatConcat,
		ErrorPolicy:     conn.FailOpen,
		ShutdownTimeout: 30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.Tick <= 0 {
		c.Tick = d.Tick
	}
	if c.DumpInterval <= 0 {
		c.DumpInterval = d.DumpInterval
	}
	if c.DumpDir == "" {
		c.DumpDir = d.DumpDir
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.RetentionTTL < 0 {
		return fmt.Errorf("%w: negative retention %s", ErrInvalidConfig, c.RetentionTTL)
	}
	if c.ErrorPolicy != conn.FailOpen && c.ErrorPolicy != conn.Halt {
		return fmt.Errorf("%w: unknown error policy %d", ErrInvalidConfig, c.ErrorPolicy)
	}
	return nil
}

// Address returns host:port for the given port.
func (c Config) Address(port int) string {
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}
