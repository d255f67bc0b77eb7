package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/sqmean/internal/config"
	"github.com/vango-dev/sqmean/internal/errors"
	"github.com/vango-dev/sqmean/pkg/conn"
	"github.com/vango-dev/sqmean/pkg/dump"
)

func TestVersionShort(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Errorf("version --short = %q, want %q", got, version)
	}
}

func TestServerFlagsOverrideConfig(t *testing.T) {
	cmd := serverCmd()
	err := cmd.ParseFlags([]string{
		"--port=7000",
		"--tick=2ms",
		"--store=memory",
		"--format=lines",
		"--error-policy=halt",
		"--retention=10m",
	})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	cfg := config.New()
	applyServerFlags(cmd, cfg)

	if cfg.Server.Port != 7000 || cfg.Server.Tick != "2ms" || cfg.Dump.Store != "memory" {
		t.Errorf("overrides not applied: %+v", cfg.Server)
	}
	if cfg.Server.Host != config.DefaultServerHost {
		t.Errorf("unset host changed to %q", cfg.Server.Host)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	scfg, err := serverConfig(cfg)
	if err != nil {
		t.Fatalf("serverConfig: %v", err)
	}
	if scfg.Port != 7000 || scfg.Tick != 2*time.Millisecond {
		t.Errorf("server config = %+v", scfg)
	}
	if scfg.DumpFormat != dump.FormatLines || scfg.ErrorPolicy != conn.Halt {
		t.Errorf("format/policy = %v/%v", scfg.DumpFormat, scfg.ErrorPolicy)
	}
	if scfg.RetentionTTL != 10*time.Minute {
		t.Errorf("retention = %v", scfg.RetentionTTL)
	}
}

func TestBuildStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := config.New()
		cfg.Dump.Store = "memory"
		store, cleanup, err := buildStore(ctx, cfg, dump.FormatConcat)
		if err != nil {
			t.Fatalf("buildStore: %v", err)
		}
		defer cleanup()
		if _, ok := store.(*dump.MemoryStore); !ok {
			t.Errorf("store = %T", store)
		}
	})

	t.Run("file", func(t *testing.T) {
		cfg := config.New()
		cfg.Dump.Dir = filepath.Join(t.TempDir(), "dumps")
		store, cleanup, err := buildStore(ctx, cfg, dump.FormatConcat)
		if err != nil {
			t.Fatalf("buildStore: %v", err)
		}
		defer cleanup()
		if _, ok := store.(*dump.FileStore); !ok {
			t.Errorf("store = %T", store)
		}
	})

	t.Run("file dir not usable", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(blocker, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		cfg := config.New()
		cfg.Dump.Dir = filepath.Join(blocker, "dumps")
		_, _, err := buildStore(ctx, cfg, dump.FormatConcat)
		if code := errors.Code(err); code != "E020" {
			t.Errorf("code = %q, want E020 (err %v)", code, err)
		}
	})

	t.Run("mixed-case store validated then built", func(t *testing.T) {
		cfg := config.New()
		cfg.Dump.Store = "MEMORY"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		store, cleanup, err := buildStore(ctx, cfg, dump.FormatConcat)
		if err != nil {
			t.Fatalf("buildStore: %v", err)
		}
		defer cleanup()
		if _, ok := store.(*dump.MemoryStore); !ok {
			t.Errorf("store = %T", store)
		}
	})

	t.Run("unknown store", func(t *testing.T) {
		cfg := config.New()
		cfg.Dump.Store = "S3"
		_, _, err := buildStore(ctx, cfg, dump.FormatConcat)
		if code := errors.Code(err); code != "E043" {
			t.Errorf("code = %q, want E043 (err %v)", code, err)
		}
	})

	t.Run("s3", func(t *testing.T) {
		cfg := config.New()
		cfg.Dump.Store = "s3"
		cfg.Dump.S3.Bucket = "dumps"
		cfg.Dump.S3.Region = "eu-west-1"
		store, cleanup, err := buildStore(ctx, cfg, dump.FormatConcat)
		if err != nil {
			t.Fatalf("buildStore: %v", err)
		}
		defer cleanup()
		if _, ok := store.(*dump.S3Store); !ok {
			t.Errorf("store = %T", store)
		}
	})
}

func TestLoadConfigMissingFile(t *testing.T) {
	root := newRootCmd()
	cmd, _, err := root.Find([]string{"server"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	missing := filepath.Join(t.TempDir(), "missing.json")
	if err := cmd.ParseFlags([]string{"--config", missing}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	_, err = loadConfig(cmd)
	if code := errors.Code(err); code != "E040" {
		t.Errorf("code = %q, want E040", code)
	}
}

func TestLoadConfigLogOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.ConfigFileName)
	if err := os.WriteFile(path, []byte(`{"log": {"level": "warn"}, "client": {"attempts": 5}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	cmd, _, err := root.Find([]string{"client"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if err := cmd.ParseFlags([]string{"--config", path, "--log-format", "json", "--port", "7001"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	applyClientFlags(cmd, cfg)

	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Client.Attempts != 5 || cfg.Client.Port != 7001 {
		t.Errorf("client = %+v", cfg.Client)
	}
	if cfg.Client.Host != config.DefaultClientHost {
		t.Errorf("host = %q", cfg.Client.Host)
	}
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.ConfigFileName)

	run := func(args ...string) error {
		root := newRootCmd()
		root.SetArgs(append([]string{"config", "init"}, args...))
		return root.Execute()
	}

	if err := run(dir); err != nil {
		t.Fatalf("config init: %v", err)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written config does not validate: %v", err)
	}
	if cfg.Server.Port != config.DefaultPort || cfg.Dump.Store != "file" {
		t.Errorf("written config = %+v", cfg)
	}

	if code := errors.Code(run(dir)); code != "E047" {
		t.Errorf("second init: code = %q, want E047", code)
	}
	if err := run(dir, "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}

	custom := filepath.Join(dir, "dev.json")
	if err := run("--config", custom); err != nil {
		t.Fatalf("init --config: %v", err)
	}
	if _, err := os.Stat(custom); err != nil {
		t.Errorf("--config target not written: %v", err)
	}
}
