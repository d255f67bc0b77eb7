package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/sqmean/internal/errors"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.Host != DefaultServerHost {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, DefaultServerHost)
	}
	if cfg.Client.Host != DefaultClientHost || cfg.Client.Attempts != 3 {
		t.Errorf("Client = %+v", cfg.Client)
	}
	if cfg.Tick() != time.Millisecond || cfg.DumpInterval() != 5*time.Second {
		t.Errorf("Tick = %s, DumpInterval = %s", cfg.Tick(), cfg.DumpInterval())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Path() != filepath.Join(dir, ConfigFileName) {
		t.Errorf("Path = %q", cfg.Path())
	}
}

func TestLoadPartialFile(t *testing.T) {
	dir := t.TempDir()
	configJSON := `{
  "server": {"port": 7000, "tick": "2ms"},
  "dump": {"store": "sqlite", "format": "lines", "sql": {"dsn": "x.db"}},
  "log": {"level": "debug"}
}
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(configJSON), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7000 || cfg.Tick() != 2*time.Millisecond {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Server.Host != DefaultServerHost {
		t.Errorf("Host default not applied: %q", cfg.Server.Host)
	}
	if cfg.Dump.Store != "sqlite" || cfg.Dump.Format != "lines" {
		t.Errorf("Dump = %+v", cfg.Dump)
	}
	if cfg.Dump.SQL.DSN != "x.db" || cfg.Dump.SQL.Driver != "sqlite3" || cfg.Dump.SQL.Table != "sqmean_dumps" {
		t.Errorf("SQL = %+v", cfg.Dump.SQL)
	}
	if cfg.Dump.Interval != "5s" || cfg.Log.Format != "text" || cfg.Log.Level != "debug" {
		t.Errorf("defaults not applied: dump=%+v log=%+v", cfg.Dump, cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.json"))
	if errors.Code(err) != "E040" {
		t.Errorf("missing file: code = %q, want E040", errors.Code(err))
	}

	bad := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(bad, []byte(`{"server": {`), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = Load(dir)
	if errors.Code(err) != "E040" {
		t.Errorf("invalid JSON: code = %q, want E040", errors.Code(err))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   string
	}{
		{"server port", func(c *Config) { c.Server.Port = 70000 }, "E041"},
		{"client port", func(c *Config) { c.Client.Port = -1 }, "E041"},
		{"zero tick", func(c *Config) { c.Server.Tick = "0s" }, "E042"},
		{"bad interval", func(c *Config) { c.Dump.Interval = "soon" }, "E042"},
		{"negative retention", func(c *Config) { c.Server.RetentionTTL = "-1m" }, "E042"},
		{"store", func(c *Config) { c.Dump.Store = "redis" }, "E043"},
		{"format", func(c *Config) { c.Dump.Format = "csv" }, "E044"},
		{"policy", func(c *Config) { c.Server.ErrorPolicy = "retry" }, "E045"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "E046"},
		{"attempts", func(c *Config) { c.Client.Attempts = -2 }, "E048"},
		{"s3 without bucket", func(c *Config) { c.Dump.Store = "s3" }, "E022"},
		{"mixed-case s3 without bucket", func(c *Config) { c.Dump.Store = "S3" }, "E022"},
		{"mixed-case enums", func(c *Config) {
			c.Dump.Store = "SQLite"
			c.Dump.Format = "Lines"
			c.Server.ErrorPolicy = "HALT"
			c.Log.Level = "Debug"
			c.Log.Format = "JSON"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if got := errors.Code(err); got != tt.code {
				t.Errorf("code = %q, want %q (err: %v)", got, tt.code, err)
			}
		})
	}

	mixed := New()
	mixed.Dump.Store = " Memory "
	mixed.Log.Format = "Json"
	if err := mixed.Validate(); err != nil {
		t.Fatalf("mixed case: %v", err)
	}
	if mixed.Dump.Store != "memory" || mixed.Log.Format != "json" {
		t.Errorf("normalized store=%q log format=%q", mixed.Dump.Store, mixed.Log.Format)
	}

	ok := New()
	ok.Dump.Store = "s3"
	ok.Dump.S3 = S3Config{Bucket: "b", Region: "us-east-1"}
	if err := ok.Validate(); err != nil {
		t.Errorf("s3 with bucket and region: %v", err)
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)

	cfg := New()
	cfg.Server.Port = 6000
	cfg.Admin.Addr = ":9090"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Error("saved file should end with a newline")
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.Server.Port != 6000 || loaded.Admin.Addr != ":9090" {
		t.Errorf("reloaded = %+v", loaded)
	}
	if err := loaded.Save(); err != nil {
		t.Errorf("Save: %v", err)
	}

	if err := (&Config{}).Save(); err == nil {
		t.Error("Save without a path should fail")
	}
}
