package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/sqmean/pkg/conn"
	"github.com/vango-dev/sqmean/pkg/dump"
	"github.com/vango-dev/sqmean/pkg/registry"
)

// Stats is a point-in-time view of the whole server.
type Stats struct {
	Running      bool             `json:"running"`
	Accepting    bool             `json:"accepting"`
	Address      string           `json:"address,omitempty"`
	Uptime       string           `json:"uptime,omitempty"`
	Accepted     uint64           `json:"accepted"`
	AcceptErrors uint64           `json:"accept_errors"`
	Registry     registry.Stats   `json:"registry"`
	Dump         dump.WorkerStats `json:"dump"`
	CollectedAt  time.Time        `json:"collected_at"`
}

// Manager owns the event loop, the registry and the dump worker.
// A Manager can be started once.
type Manager struct {
	cfg      Config
	logger   *slog.Logger
	promReg  *prometheus.Registry
	metrics  *Metrics
	registry *registry.Registry
	worker   *dump.Worker
	store    dump.Store
	connOpts []conn.Option

	mu        sync.Mutex
	started   bool
	stopped   bool
	startedAt time.Time
	ln        net.Listener
	acceptor  *Acceptor
	cancel    context.CancelFunc

	accepting    atomic.Bool
	loopDone     chan struct{}
	registryDone chan struct{}
}

// New creates a Manager. It returns an error if cfg is invalid or the
// default file store cannot be created.
func New(cfg Config, opts ...Option) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	if o.store == nil {
		fs, err := dump.NewFileStore(cfg.DumpDir, cfg.DumpFormat)
		if err != nil {
			return nil, fmt.Errorf("server: dump dir: %w", err)
		}
		o.store = fs
	}

	metrics := NewMetrics(o.registry)

	workerOpts := []dump.WorkerOption{
		dump.WithInterval(cfg.DumpInterval),
		dump.WithLogger(o.logger),
		dump.WithObserver(metrics),
	}
	if o.tracer != nil {
		workerOpts = append(workerOpts, dump.WithTracer(o.tracer))
	}
	worker := dump.NewWorker(o.store, workerOpts...)

	reg := registry.New(registry.Config{
		Tick:         cfg.Tick,
		DumpInterval: cfg.DumpInterval,
		RetentionTTL: cfg.RetentionTTL,
	},
		registry.WithLogger(o.logger),
		registry.WithSink(worker),
		registry.WithObserver(metrics),
	)

	m := &Manager{
		cfg:      cfg,
		logger:   o.logger.With("component", "server"),
		promReg:  o.registry,
		metrics:  metrics,
		registry: reg,
		worker:   worker,
		store:    o.store,
		ln:       o.listener,
		connOpts: []conn.Option{
			conn.WithLogger(o.logger.With("component", "conn")),
			conn.WithErrorPolicy(cfg.ErrorPolicy),
			conn.WithObserver(metrics),
		},
		loopDone:     make(chan struct{}),
		registryDone: make(chan struct{}),
	}
	return m, nil
}

// Start binds host:port (unless a listener was supplied with WithListener)
// and launches the event loop, the registry and the dump worker.
// Port 0 picks a free port; see Addr.
func (m *Manager) Start(port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}

	if m.ln == nil {
		addr := m.cfg.Address(port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("server: listen %s: %w", addr, err)
		}
		m.ln = ln
	}
	m.acceptor = NewAcceptor(m.ln, m.registry, m.logger, m.metrics, m.connOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.worker.Start()
	go func() {
		defer close(m.registryDone)
		m.registry.Run(ctx)
	}()

	m.accepting.Store(true)
	go m.eventLoop()

	m.started = true
	m.startedAt = time.Now()
	m.logger.Info("server started",
		"addr", m.ln.Addr().String(),
		"tick", m.cfg.Tick,
		"dump_interval", m.cfg.DumpInterval,
		"error_policy", m.cfg.ErrorPolicy.String(),
	)
	return nil
}

// eventLoop runs the acceptor. A panic is logged and ends the loop; the
// process keeps running but accepts no new connections.
func (m *Manager) eventLoop() {
	defer close(m.loopDone)
	defer m.accepting.Store(false)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event loop panic",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := m.acceptor.Serve(); err != nil {
		m.logger.Error("event loop stopped", "error", err)
	}
}

// Stop closes the listener, stops the registry (which snapshots every
// aggregate), runs the dump worker's final flush and waits for all
// goroutines. Stop is idempotent and safe to call before Start.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	started := m.started
	m.mu.Unlock()

	if !started {
		if m.ln != nil {
			m.ln.Close()
		}
		return m.worker.Stop(context.Background())
	}

	m.logger.Info("shutting down...")

	if err := m.ln.Close(); err != nil {
		m.logger.Debug("listener close", "error", err)
	}
	<-m.loopDone

	m.cancel()
	<-m.registryDone

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ShutdownTimeout)
	defer cancel()
	err := m.worker.Stop(ctx)
	if err != nil {
		m.logger.Error("dump worker did not finish", "error", err)
	}

	m.metrics.resetLive()
	m.logger.Info("server shutdown complete")
	return err
}

// Run starts on Config.Port and blocks until ctx is done or the process
// receives SIGINT or SIGTERM, then stops.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(m.cfg.Port); err != nil {
		return err
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case <-ctx.Done():
	case sig := <-shutdown:
		m.logger.Info("signal received", "signal", sig.String())
	}
	return m.Stop()
}

// Addr returns the bound address, or nil before Start.
func (m *Manager) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln == nil || !m.started {
		return nil
	}
	return m.ln.Addr()
}

// Gatherer returns the Prometheus registry holding the server collectors.
func (m *Manager) Gatherer() prometheus.Gatherer { return m.promReg }

// Stats collects current counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	running := m.started && !m.stopped
	startedAt := m.startedAt
	acceptor := m.acceptor
	var addr string
	if m.started && m.ln != nil {
		addr = m.ln.Addr().String()
	}
	m.mu.Unlock()

	s := Stats{
		Running:     running,
		Accepting:   m.accepting.Load(),
		Address:     addr,
		Registry:    m.registry.Stats(),
		Dump:        m.worker.Stats(),
		CollectedAt: time.Now(),
	}
	if running {
		s.Uptime = time.Since(startedAt).Truncate(time.Second).String()
	}
	if acceptor != nil {
		s.Accepted = acceptor.Accepted()
		s.AcceptErrors = acceptor.Failed()
	}
	return s
}
