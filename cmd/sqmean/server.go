package main

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/vango-dev/sqmean/internal/admin"
	"github.com/vango-dev/sqmean/internal/config"
	"github.com/vango-dev/sqmean/internal/errors"
	"github.com/vango-dev/sqmean/pkg/conn"
	"github.com/vango-dev/sqmean/pkg/dump"
	"github.com/vango-dev/sqmean/pkg/server"
)

func serverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the squared-mean server",
		Long: `Run the squared-mean TCP server.

Every connection gets its own aggregate. Each 4-byte value received is
squared and added to the connection's set of distinct squares; the
server answers with the integer mean of that set. Every dump interval
the aggregates are written to the configured store, and once more on
shutdown.

Examples:
  sqmean server
  sqmean server --port=7000 --dump-dir=/var/lib/sqmean
  sqmean server --store=sqlite --admin-addr=127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyServerFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	fl := cmd.Flags()
	fl.IntP("port", "p", 0, "Port to listen on (default 64000)")
	fl.StringP("host", "H", "", "Interface to bind (default 0.0.0.0)")
	fl.String("tick", "", "Registry polling period (default 1ms)")
	fl.String("dump-interval", "", "Snapshot and flush cadence (default 5s)")
	fl.String("dump-dir", "", "Directory for .dmp files (default .)")
	fl.String("store", "", "Dump store: file, memory, sqlite, s3")
	fl.String("format", "", "Dump format: concat, lines")
	fl.String("error-policy", "", "Non-reset I/O errors: fail-open, halt")
	fl.String("retention", "", "Evict aggregates of closed connections after this long (0s keeps them)")
	fl.String("admin-addr", "", "Serve /healthz, /metrics and /stats on this address")

	return cmd
}

// applyServerFlags copies explicitly set flags over file values.
func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	overrideInt(cmd, "port", &cfg.Server.Port)
	override(cmd, "host", &cfg.Server.Host)
	override(cmd, "tick", &cfg.Server.Tick)
	override(cmd, "dump-interval", &cfg.Dump.Interval)
	override(cmd, "dump-dir", &cfg.Dump.Dir)
	override(cmd, "store", &cfg.Dump.Store)
	override(cmd, "format", &cfg.Dump.Format)
	override(cmd, "error-policy", &cfg.Server.ErrorPolicy)
	override(cmd, "retention", &cfg.Server.RetentionTTL)
	override(cmd, "admin-addr", &cfg.Admin.Addr)
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	scfg, err := serverConfig(cfg)
	if err != nil {
		return err
	}

	store, cleanup, err := buildStore(ctx, cfg, scfg.DumpFormat)
	if err != nil {
		return err
	}
	defer cleanup()

	promReg := server.NewRegistry()
	m, err := server.New(scfg,
		server.WithLogger(logger),
		server.WithStore(store),
		server.WithRegistry(promReg),
		server.WithTracer(otel.Tracer("sqmean/dump")),
	)
	if err != nil {
		return errors.FromError(err, "E060")
	}

	if cfg.Admin.Addr != "" {
		adm := admin.NewServer(cfg.Admin.Addr, m, promReg, logger,
			admin.WithRequestMetrics(promReg),
			admin.WithTracer(otel.Tracer("sqmean/admin")),
		)
		if err := adm.Start(); err != nil {
			return errors.New("E061").WithSource(cfg.Admin.Addr).Wrap(err)
		}
		defer shutdownAdmin(adm, logger)
		info("Admin endpoint on http://%s", adm.Addr())
	}

	info("Listening on %s:%d (store: %s, dump every %s)",
		cfg.Server.Host, cfg.Server.Port, cfg.Dump.Store, cfg.Dump.Interval)

	if err := m.Run(ctx); err != nil {
		if m.Addr() == nil {
			return errors.New("E001").
				WithSource(cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)).
				WithSuggestion("Pick another port with --port").
				Wrap(err)
		}
		return errors.New("E023").Wrap(err)
	}

	stats := m.Stats()
	success("Stopped after %d connections, %d dumps written", stats.Accepted, stats.Dump.Written)
	return nil
}

// serverConfig converts the file config into server.Config.
func serverConfig(cfg *config.Config) (server.Config, error) {
	policy, err := conn.ParseErrorPolicy(cfg.Server.ErrorPolicy)
	if err != nil {
		return server.Config{}, errors.New("E045").Wrap(err)
	}
	format, err := dump.ParseFormat(cfg.Dump.Format)
	if err != nil {
		return server.Config{}, errors.New("E044").Wrap(err)
	}

	scfg := server.DefaultConfig()
	scfg.Host = cfg.Server.Host
	scfg.Port = cfg.Server.Port
	scfg.Tick = cfg.Tick()
	scfg.DumpInterval = cfg.DumpInterval()
	scfg.DumpDir = cfg.Dump.Dir
	scfg.DumpFormat = format
	scfg.ErrorPolicy = policy
	scfg.RetentionTTL = cfg.RetentionTTL()
	return scfg, nil
}

// buildStore opens the configured dump store. cleanup releases resources
// the store does not own, such as the database handle.
func buildStore(ctx context.Context, cfg *config.Config, format dump.Format) (dump.Store, func(), error) {
	noop := func() {}

	switch cfg.Dump.Store {
	case "memory":
		return dump.NewMemoryStore(), noop, nil

	case "sqlite":
		db, err := sql.Open(cfg.Dump.SQL.Driver, cfg.Dump.SQL.DSN)
		if err != nil {
			return nil, nil, errors.New("E021").WithSource(cfg.Dump.SQL.DSN).Wrap(err)
		}
		store := dump.NewSQLStore(db,
			dump.WithSQLTableName(cfg.Dump.SQL.Table),
			dump.WithSQLDialect(dump.DialectFor(cfg.Dump.SQL.Driver)),
			dump.WithSQLFormat(format),
		)
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := store.CreateTable(ctx); err != nil {
			db.Close()
			return nil, nil, errors.New("E021").WithSource(cfg.Dump.SQL.DSN).Wrap(err)
		}
		return store, func() { db.Close() }, nil

	case "s3":
		s3cfg := dump.S3Config{
			Bucket:   cfg.Dump.S3.Bucket,
			Prefix:   cfg.Dump.S3.Prefix,
			Region:   cfg.Dump.S3.Region,
			Endpoint: cfg.Dump.S3.Endpoint,
		}
		client := dump.NewS3Client(s3cfg)
		return dump.NewS3Store(client, s3cfg.Bucket, s3cfg.Prefix, format), noop, nil

	case "file":
		store, err := dump.NewFileStore(cfg.Dump.Dir, format)
		if err != nil {
			return nil, nil, errors.New("E020").WithSource(cfg.Dump.Dir).Wrap(err)
		}
		return store, noop, nil

	default:
		return nil, nil, errors.New("E043").WithDetail("Unknown store " + strconv.Quote(cfg.Dump.Store))
	}
}

func shutdownAdmin(adm *admin.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := adm.Shutdown(ctx); err != nil {
		logger.Warn("admin shutdown", "error", err)
	}
}
