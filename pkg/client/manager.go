package client

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/sqmean/pkg/protocol"
)

// Config configures a Manager.
type Config struct {
	// Host is the server host.
	// Default: "127.0.0.1"
	Host string

	// Port is the server port.
	// Default: 64000
	Port int

	// Attempts is the shared failure budget.
	// Default: 3
	Attempts int

	// Pause is the wait between exchanges.
	// Default: 1ms
	Pause time.Duration

	// DialTimeout bounds each connection attempt.
	// Default: 5 seconds
	DialTimeout time.Duration
}

// DefaultConfig returns a Config with the default server address and budget.
func DefaultConfig() Config {
	return Config{
		Host:        "127.0.0.1",
		Port:        64000,
		Attempts:    3,
		Pause:       time.Millisecond,
		DialTimeout: 5 * time.Second,
	}
}

// Result is one completed exchange.
type Result struct {
	Value uint32
	Mean  uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithValues replaces the random value source.
func WithValues(next func() uint32) Option {
	return func(m *Manager) { m.next = next }
}

// WithResults registers a callback invoked after every exchange.
func WithResults(fn func(Result)) Option {
	return func(m *Manager) { m.onResult = fn }
}

// Stats is a point-in-time view of a Manager.
type Stats struct {
	Exchanges    uint64 `json:"exchanges"`
	Failures     uint64 `json:"failures"`
	AttemptsLeft int    `json:"attempts_left"`
	LastMean     uint64 `json:"last_mean"`
}

// Manager runs the client loop on its own goroutine.
type Manager struct {
	cfg      Config
	logger   *slog.Logger
	next     func() uint32
	onResult func(Result)

	attempts  atomic.Int32
	exchanges atomic.Uint64
	failures  atomic.Uint64
	lastMean  atomic.Uint64

	mu       sync.Mutex
	started  bool
	stopped  bool
	current  *Client
	done     chan struct{}
	finished chan struct{}
}

// NewManager creates a Manager. Zero fields in cfg take their defaults.
func NewManager(cfg Config, opts ...Option) *Manager {
	d := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = d.Host
	}
	if cfg.Port == 0 {
		cfg.Port = d.Port
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = d.Attempts
	}
	if cfg.Pause <= 0 {
		cfg.Pause = d.Pause
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = d.DialTimeout
	}

	m := &Manager{
		cfg:      cfg,
		logger:   slog.Default(),
		next:     func() uint32 { return rand.Uint32N(protocol.MaxValue + 1) },
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "client")
	m.attempts.Store(int32(cfg.Attempts))
	return m
}

// Start launches the client loop. It returns ErrStopped after Stop and
// ErrAlreadyStarted on a second call.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	go m.run()
	return nil
}

// Stop ends the loop, closes the connection and waits for the goroutine.
// It is idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		<-m.finished
		return
	}
	m.stopped = true
	close(m.done)
	if m.current != nil {
		m.current.Close()
	}
	started := m.started
	m.mu.Unlock()

	if !started {
		close(m.finished)
		return
	}
	<-m.finished
	m.logger.Info("client stopped", "exchanges", m.exchanges.Load())
}

// Done is closed when the loop exits, either by Stop or because the attempt
// budget ran out.
func (m *Manager) Done() <-chan struct{} { return m.finished }

// AttemptsLeft returns the remaining failure budget.
func (m *Manager) AttemptsLeft() int { return int(m.attempts.Load()) }

// Stats returns current counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Exchanges:    m.exchanges.Load(),
		Failures:     m.failures.Load(),
		AttemptsLeft: m.AttemptsLeft(),
		LastMean:     m.lastMean.Load(),
	}
}

func (m *Manager) stopping() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *Manager) run() {
	defer close(m.finished)

	m.logger.Info("client started",
		"host", m.cfg.Host,
		"port", m.cfg.Port,
		"attempts", m.cfg.Attempts,
	)

	for m.attempts.Load() > 0 && !m.stopping() {
		err := m.session()
		if m.stopping() {
			return
		}
		m.fail(err)
		m.wait()
	}

	if !m.stopping() {
		m.logger.Warn("attempt budget exhausted, client loop ended",
			"failures", m.failures.Load(),
		)
	}
}

// session connects and exchanges values until an error or Stop.
func (m *Manager) session() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	c, err := Dial(ctx, m.cfg.Host, m.cfg.Port)
	cancel()
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		c.Close()
		return nil
	}
	m.current = c
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.current = nil
		m.mu.Unlock()
		c.Close()
	}()

	m.logger.Info("connected", "local", c.LocalAddr())

	for !m.stopping() {
		v := m.next()
		mean, err := c.Exchange(v)
		if err != nil {
			return err
		}

		m.exchanges.Add(1)
		m.lastMean.Store(mean)
		m.logger.Debug("exchange", "value", v, "mean", mean)
		if m.onResult != nil {
			m.onResult(Result{Value: v, Mean: mean})
		}
		m.wait()
	}
	return nil
}

// fail consumes one attempt.
func (m *Manager) fail(err error) {
	m.failures.Add(1)
	left := m.attempts.Add(-1)
	m.logger.Warn("client error", "error", err, "attempts_left", left)
}

// wait pauses for Pause or until Stop.
func (m *Manager) wait() {
	t := time.NewTimer(m.cfg.Pause)
	defer t.Stop()
	select {
	case <-t.C:
	case <-m.done:
	}
}
