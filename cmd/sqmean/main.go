package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/sqmean/internal/config"
	"github.com/vango-dev/sqmean/internal/errors"
	"github.com/vango-dev/sqmean/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sqmean",
		Short: "Squared-mean TCP service",
		Long: `sqmean runs a TCP service that answers every 4-byte value with the
mean of the distinct squares seen on that connection, and a reference
client that exercises it.

Aggregates are snapshotted on a fixed cadence and written to a dump
store (files, memory, SQLite or S3).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "Path to sqmean.json (default: ./sqmean.json if present)")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("log-format", "", "Log format: text, json")
	pf.String("log-file", "", "Also write logs to this file (rotated at 10 MB)")

	rootCmd.AddCommand(
		serverCmd(),
		clientCmd(),
		configCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig reads the config file and applies the logging flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return nil, err
	}

	override(cmd, "log-level", &cfg.Log.Level)
	override(cmd, "log-format", &cfg.Log.Format)
	override(cmd, "log-file", &cfg.Log.File)
	return cfg, nil
}

// override copies a string flag into dst if it was set on the command line.
func override(cmd *cobra.Command, name string, dst *string) {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		*dst = f.Value.String()
	}
}

// overrideInt is override for int flags.
func overrideInt(cmd *cobra.Command, name string, dst *int) {
	if cmd.Flags().Changed(name) {
		if v, err := cmd.Flags().GetInt(name); err == nil {
			*dst = v
		}
	}
}

// setupLogging installs the process logger described by cfg.Log.
func setupLogging(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	logger, closer, err := logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		if cfg.Log.File != "" {
			return nil, nil, errors.New("E062").WithSource(cfg.Log.File).Wrap(err)
		}
		return nil, nil, errors.New("E046").Wrap(err)
	}
	return logger, closer, nil
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
