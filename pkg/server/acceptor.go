package server

import (
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/vango-dev/sqmean/pkg/conn"
)

// Registrar takes ownership of accepted connections. *registry.Registry
// implements it.
type Registrar interface {
	Register(c *conn.Connection) bool
}

// Acceptor runs the accept loop. At most one Accept is outstanding.
type Acceptor struct {
	ln       net.Listener
	target   Registrar
	connOpts []conn.Option
	logger   *slog.Logger
	metrics  *Metrics

	accepted atomic.Uint64
	failed   atomic.Uint64
}

// NewAcceptor creates an Acceptor that wraps each socket with connOpts and
// registers it with target. metrics may be nil.
func NewAcceptor(ln net.Listener, target Registrar, logger *slog.Logger, metrics *Metrics, connOpts ...conn.Option) *Acceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acceptor{
		ln:       ln,
		target:   target,
		connOpts: connOpts,
		logger:   logger.With("component", "acceptor"),
		metrics:  metrics,
	}
}

// Serve accepts until the listener is closed, then returns nil.
// Other accept errors are logged and the loop continues after a short backoff.
func (a *Acceptor) Serve() error {
	a.logger.Info("accepting", "addr", a.ln.Addr().String())

	var backoff time.Duration
	for {
		nc, err := a.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				a.logger.Info("listener closed")
				return nil
			}

			a.failed.Add(1)
			if a.metrics != nil {
				a.metrics.AcceptFailed()
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			a.logger.Warn("accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		a.accepted.Add(1)
		if a.metrics != nil {
			a.metrics.ConnectionAccepted()
		}
		a.logger.Debug("connection accepted", "remote", nc.RemoteAddr().String())

		if !a.target.Register(conn.New(nc, a.connOpts...)) {
			a.logger.Warn("connection rejected, registry stopped", "remote", nc.RemoteAddr().String())
		}
	}
}

// Accepted returns the number of successful accepts.
func (a *Acceptor) Accepted() uint64 { return a.accepted.Load() }

// Failed returns the number of failed accepts.
func (a *Acceptor) Failed() uint64 { return a.failed.Load() }
