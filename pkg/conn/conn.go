// Package conn wraps one accepted socket with an independent status machine
// per direction.
//
// A Connection never blocks its owner. BeginRead and BeginWrite start the
// operation on a short-lived goroutine parked in the runtime netpoller and
// return immediately; the outcome is published through atomic status fields
// that the owner polls. At most one read and one write are in flight at a
// time.
//
// The owner (the registry goroutine) is the only caller of BeginRead,
// BeginWrite and Data. Status accessors are safe from any goroutine.
package conn

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/vango-dev/sqmean/pkg/protocol"
)

// Direction names an I/O direction in logs and observer callbacks.
type Direction string

const (
	Read  Direction = "read"
	Write Direction = "write"
)

// Observer receives the outcome of every finished operation. It is called
// from the completion goroutine and must be safe for concurrent use.
type Observer interface {
	OpDone(dir Direction, n int, status Status, err error)
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Connection) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithErrorPolicy sets how non-reset errors are treated.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(c *Connection) { c.policy = p }
}

// WithObserver registers an observer for finished operations.
func WithObserver(o Observer) Option {
	return func(c *Connection) { c.observer = o }
}

// Connection is one accepted socket.
type Connection struct {
	id atomic.Uint64
	nc net.Conn

	buf   [protocol.RequestSize]byte
	wdata []byte

	read      atomic.Int32
	write     atomic.Int32
	bytesRead atomic.Int32
	open      atomic.Bool

	policy   ErrorPolicy
	observer Observer
	logger   *slog.Logger

	closeOnce sync.Once
	inflight  sync.WaitGroup
}

// New wraps nc. Both directions start in StatusUnknown.
func New(nc net.Conn, opts ...Option) *Connection {
	c := &Connection{
		nc:     nc,
		logger: slog.Default(),
		wdata:  make([]byte, 0, protocol.ResponseSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.open.Store(true)
	return c
}

// ID returns the registry-assigned id, or 0 before registration.
func (c *Connection) ID() uint64 { return c.id.Load() }

// SetID assigns the id. Only the registry calls this.
func (c *Connection) SetID(id uint64) { c.id.Store(id) }

// ReadStatus returns the current read status.
func (c *Connection) ReadStatus() Status { return Status(c.read.Load()) }

// WriteStatus returns the current write status.
func (c *Connection) WriteStatus() Status { return Status(c.write.Load()) }

// IsOpen reports whether Close has not been called.
func (c *Connection) IsOpen() bool { return c.open.Load() }

// BytesRead returns the byte count of the last finished read.
func (c *Connection) BytesRead() int { return int(c.bytesRead.Load()) }

// Data returns the read buffer. It is only meaningful while ReadStatus is
// StatusComplete; the slice is overwritten by the next BeginRead.
func (c *Connection) Data() []byte { return c.buf[:] }

// RemoteAddr returns the peer address, or "" if unknown.
func (c *Connection) RemoteAddr() string {
	if c.nc == nil || c.nc.RemoteAddr() == nil {
		return ""
	}
	return c.nc.RemoteAddr().String()
}

// BeginRead starts a read of exactly protocol.RequestSize bytes. It returns
// false without doing anything unless the read status is Unknown or Complete.
func (c *Connection) BeginRead() bool {
	s := c.ReadStatus()
	if !s.Armable() {
		return false
	}
	if !c.IsOpen() {
		c.read.CompareAndSwap(int32(s), int32(StatusClosed))
		return false
	}
	c.buf = [protocol.RequestSize]byte{}
	c.bytesRead.Store(0)
	if !c.read.CompareAndSwap(int32(s), int32(StatusInProgress)) {
		return false
	}

	c.inflight.Add(1)
	go c.doRead()
	return true
}

func (c *Connection) doRead() {
	defer c.inflight.Done()

	n, err := io.ReadFull(c.nc, c.buf[:])
	c.bytesRead.Store(int32(n))
	next := c.finish(Read, n, err)
	c.read.Store(int32(next))
}

// BeginWrite starts writing b in full. It returns false without doing
// anything unless the write status is Unknown or Complete. b is copied.
func (c *Connection) BeginWrite(b []byte) bool {
	s := c.WriteStatus()
	if !s.Armable() {
		return false
	}
	if !c.IsOpen() {
		c.write.CompareAndSwap(int32(s), int32(StatusClosed))
		return false
	}
	c.wdata = append(c.wdata[:0], b...)
	if !c.write.CompareAndSwap(int32(s), int32(StatusInProgress)) {
		return false
	}

	c.inflight.Add(1)
	go c.doWrite()
	return true
}

func (c *Connection) doWrite() {
	defer c.inflight.Done()

	n, err := c.nc.Write(c.wdata)
	next := c.finish(Write, n, err)
	c.write.Store(int32(next))
}

// finish logs the outcome and returns the status the direction moves to.
func (c *Connection) finish(dir Direction, n int, err error) Status {
	next := classify(err, c.policy)

	switch {
	case err == nil:
		c.logger.Debug("io complete",
			"conn_id", c.ID(),
			"op", string(dir),
			"bytes", n,
		)
	case next == StatusClosed:
		c.logger.Debug("connection closed by peer",
			"conn_id", c.ID(),
			"op", string(dir),
			"error", err,
		)
	default:
		c.logger.Warn("transport error",
			"conn_id", c.ID(),
			"op", string(dir),
			"bytes", n,
			"status", next.String(),
			"error", err,
		)
	}

	if c.observer != nil {
		c.observer.OpDone(dir, n, next, err)
	}
	return next
}

// Close shuts the socket. In-flight operations complete as StatusClosed;
// idle directions move to StatusClosed immediately. Close is idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.open.Store(false)
		if c.nc != nil {
			err = c.nc.Close()
		}
		closeIdle(&c.read)
		closeIdle(&c.write)
	})
	return err
}

// Wait blocks until no operation is in flight. Call it after Close.
func (c *Connection) Wait() {
	c.inflight.Wait()
}

func closeIdle(status *atomic.Int32) {
	for {
		s := Status(status.Load())
		if s == StatusInProgress || s.Terminal() {
			return
		}
		if status.CompareAndSwap(int32(s), int32(StatusClosed)) {
			return
		}
	}
}
