package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/sqmean/internal/config"
	"github.com/vango-dev/sqmean/internal/errors"
	"github.com/vango-dev/sqmean/pkg/client"
)

func clientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run the reference client",
		Long: `Run the reference client.

The client connects to the server and repeatedly sends a random value
in [0, 1023], reading back the mean after each one. Any I/O error costs
one attempt from a shared budget; when the budget is spent the client
stops.

Examples:
  sqmean client
  sqmean client --host=10.0.0.5 --attempts=10 --pause=100ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyClientFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runClient(cmd.Context(), cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringP("host", "H", "", "Server host (default 127.0.0.1)")
	fl.IntP("port", "p", 0, "Server port (default 64000)")
	fl.IntP("attempts", "a", 0, "Failure budget shared by all reconnects (default 3)")
	fl.String("pause", "", "Wait between exchanges (default 1ms)")

	return cmd
}

// applyClientFlags copies explicitly set flags over file values.
func applyClientFlags(cmd *cobra.Command, cfg *config.Config) {
	override(cmd, "host", &cfg.Client.Host)
	overrideInt(cmd, "port", &cfg.Client.Port)
	overrideInt(cmd, "attempts", &cfg.Client.Attempts)
	override(cmd, "pause", &cfg.Client.Pause)
}

func runClient(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	m := client.NewManager(client.Config{
		Host:     cfg.Client.Host,
		Port:     cfg.Client.Port,
		Attempts: cfg.Client.Attempts,
		Pause:    cfg.ClientPause(),
	}, client.WithLogger(logger))

	if err := m.Start(); err != nil {
		return err
	}
	info("Sending to %s:%d (budget %d)", cfg.Client.Host, cfg.Client.Port, cfg.Client.Attempts)

	select {
	case <-ctx.Done():
	case <-m.Done():
	}
	m.Stop()

	stats := m.Stats()
	if stats.AttemptsLeft <= 0 {
		warn("Gave up after %d failures (%d exchanges)", stats.Failures, stats.Exchanges)
		return errors.New("E003").
			WithDetail("Last mean received: " + strconv.FormatUint(stats.LastMean, 10))
	}
	success("%d exchanges, last mean %d", stats.Exchanges, stats.LastMean)
	return nil
}
