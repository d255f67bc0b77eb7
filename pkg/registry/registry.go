// Package registry runs the single polling loop that owns every accepted
// connection.
//
// One goroutine drives all sockets. On each tick it registers connections
// handed over by the acceptor, re-arms reads, harvests finished reads into
// the aggregator, snapshots aggregates on the dump cadence and answers each
// recorded value with exactly one mean. Connections whose read or write
// direction reaches a terminal status are reaped on the tick that observes
// it.
//
// The live set and the aggregator are touched only by the loop goroutine and
// carry no locks. Register and Stats are safe from any goroutine.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/sqmean/pkg/aggregate"
	"github.com/vango-dev/sqmean/pkg/conn"
	"github.com/vango-dev/sqmean/pkg/dump"
	"github.com/vango-dev/sqmean/pkg/handoff"
	"github.com/vango-dev/sqmean/pkg/protocol"
)

// Sink receives dump snapshots. *dump.Worker implements it.
type Sink interface {
	Enqueue(b dump.Block) error
}

// Observer receives loop events for metrics. Calls happen on the loop goroutine.
type Observer interface {
	Registered(id uint64)
	Reaped(id uint64, read, write conn.Status)
	ValueRecorded(id uint64, value uint32)
	MeanSent(id uint64, mean uint64)
	SnapshotsTaken(n int)
	TickDone(elapsed time.Duration)
}

// Config configures a Registry.
type Config struct {
	// Tick is the polling period.
	// Default: 1ms
	Tick time.Duration

	// DumpInterval is how often live aggregates are snapshotted.
	// Default: 5s
	DumpInterval time.Duration

	// RetentionTTL drops aggregates of closed connections this long after
	// they close. Zero keeps them for the lifetime of the process.
	RetentionTTL time.Duration
}

// DefaultConfig returns a Config with the default cadences.
func DefaultConfig() Config {
	return Config{
		Tick:         time.Millisecond,
		DumpInterval: dump.DefaultInterval,
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSink sets where snapshots go. Without a sink snapshots are skipped.
func WithSink(s Sink) Option {
	return func(r *Registry) { r.sink = s }
}

// WithObserver registers a loop observer.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Live       int    `json:"live"`
	Entries    int    `json:"entries"`
	Pending    int    `json:"pending"`
	Registered uint64 `json:"registered"`
	Reaped     uint64 `json:"reaped"`
	Recorded   uint64 `json:"recorded"`
	Answered   uint64 `json:"answered"`
	Snapshots  uint64 `json:"snapshots"`
}

// tracked is the loop's bookkeeping for one live connection.
type tracked struct {
	c *conn.Connection

	// harvested is false while a finished read has not been recorded yet.
	harvested bool

	// owed holds, oldest first, the mean as of each recorded value that
	// has not been answered yet.
	owed []uint64
}

// Registry owns the live connection set and the aggregator.
type Registry struct {
	cfg      Config
	logger   *slog.Logger
	sink     Sink
	observer Observer

	inbound *handoff.Queue[*conn.Connection]

	// Loop goroutine only.
	live     map[uint64]*tracked
	agg      *aggregate.Aggregator
	nextID   uint64
	nextDump time.Time

	regMu   sync.Mutex
	stopped bool

	running atomic.Bool

	live64     atomic.Int64
	entries    atomic.Int64
	registered atomic.Uint64
	reaped     atomic.Uint64
	recorded   atomic.Uint64
	answered   atomic.Uint64
	snapshots  atomic.Uint64
}

// New creates a Registry. Zero fields in cfg take their defaults.
func New(cfg Config, opts ...Option) *Registry {
	defaults := DefaultConfig()
	if cfg.Tick <= 0 {
		cfg.Tick = defaults.Tick
	}
	if cfg.DumpInterval <= 0 {
		cfg.DumpInterval = defaults.DumpInterval
	}

	r := &Registry{
		cfg:     cfg,
		logger:  slog.Default(),
		inbound: handoff.New[*conn.Connection](64),
		live:    make(map[uint64]*tracked),
		agg:     aggregate.New(aggregate.Options{RetentionTTL: cfg.RetentionTTL}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "registry")
	return r
}

// Register hands an accepted connection to the loop. It is safe from any
// goroutine. After the loop has stopped the connection is closed and
// Register returns false.
func (r *Registry) Register(c *conn.Connection) bool {
	r.regMu.Lock()
	defer r.regMu.Unlock()

	if r.stopped {
		c.Close()
		return false
	}
	r.inbound.Push(c)
	return true
}

// Run drives the loop until ctx is done. It then snapshots every aggregate
// to the sink, closes every connection and returns. Run must be called once.
func (r *Registry) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	r.nextDump = time.Now().Add(r.cfg.DumpInterval)
	r.logger.Info("registry started",
		"tick", r.cfg.Tick,
		"dump_interval", r.cfg.DumpInterval,
	)

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return nil
		case now := <-ticker.C:
			r.tick(now)
		}
	}
}

// Stats returns current counters. Live and Entries are as of the last tick.
func (r *Registry) Stats() Stats {
	return Stats{
		Live:       int(r.live64.Load()),
		Entries:    int(r.entries.Load()),
		Pending:    r.inbound.Len(),
		Registered: r.registered.Load(),
		Reaped:     r.reaped.Load(),
		Recorded:   r.recorded.Load(),
		Answered:   r.answered.Load(),
		Snapshots:  r.snapshots.Load(),
	}
}

// tick runs one pass of the loop.
func (r *Registry) tick(now time.Time) {
	start := time.Now()

	r.admit()
	r.arm(now)
	r.harvest(now)
	if !now.Before(r.nextDump) {
		r.snapshot(now)
		r.nextDump = now.Add(r.cfg.DumpInterval)
	}
	r.answer(now)

	r.live64.Store(int64(len(r.live)))
	r.entries.Store(int64(r.agg.Len()))
	if r.observer != nil {
		r.observer.TickDone(time.Since(start))
	}
}

// admit registers everything waiting in the inbound queue.
func (r *Registry) admit() {
	r.inbound.Drain(func(c *conn.Connection) {
		r.nextID++
		id := r.nextID
		c.SetID(id)
		r.live[id] = &tracked{c: c, harvested: true}
		r.registered.Add(1)

		r.logger.Info("connection registered", "conn_id", id, "remote", c.RemoteAddr())
		if r.observer != nil {
			r.observer.Registered(id)
		}
	})
}

// arm starts a read on every connection that is idle and fully harvested.
func (r *Registry) arm(now time.Time) {
	for id, t := range r.live {
		switch s := t.c.ReadStatus(); {
		case s.Terminal():
			r.reap(id, t, now)
		case s == conn.StatusUnknown, s == conn.StatusComplete && t.harvested:
			if t.c.BeginRead() {
				t.harvested = false
			}
		}
	}
}

// harvest records the value of every finished read.
func (r *Registry) harvest(now time.Time) {
	for id, t := range r.live {
		s := t.c.ReadStatus()
		if s.Terminal() {
			r.reap(id, t, now)
			continue
		}
		if s != conn.StatusComplete || t.harvested {
			continue
		}

		if n := t.c.BytesRead(); n < protocol.RequestSize {
			r.logger.Warn("short read", "conn_id", id, "bytes", n)
		}
		value, _ := protocol.DecodeRequest(t.c.Data())
		r.agg.Record(id, value)
		mean, _ := r.agg.Mean(id)
		t.harvested = true
		t.owed = append(t.owed, mean)
		r.recorded.Add(1)

		r.logger.Debug("value recorded", "conn_id", id, "value", value)
		if r.observer != nil {
			r.observer.ValueRecorded(id, value)
		}
	}
}

// snapshot pushes a block for every live connection that has an aggregate.
func (r *Registry) snapshot(now time.Time) {
	taken := 0
	for id, t := range r.live {
		if t.c.ReadStatus().Terminal() {
			continue
		}
		if r.enqueue(id, now) {
			taken++
		}
	}

	if dropped := r.agg.Sweep(now); dropped > 0 {
		r.logger.Debug("retention sweep", "count", dropped)
	}
	if taken > 0 {
		r.logger.Debug("snapshots taken", "count", taken)
	}
	if r.observer != nil {
		r.observer.SnapshotsTaken(taken)
	}
}

func (r *Registry) enqueue(id uint64, now time.Time) bool {
	if r.sink == nil {
		return false
	}
	values, ok := r.agg.Snapshot(id)
	if !ok {
		return false
	}
	if err := r.sink.Enqueue(dump.Block{ConnID: id, Values: values, TakenAt: now}); err != nil {
		r.logger.Warn("snapshot rejected", "conn_id", id, "error", err)
		return false
	}
	r.snapshots.Add(1)
	return true
}

// answer writes, in order, the mean recorded alongside each value.
func (r *Registry) answer(now time.Time) {
	for id, t := range r.live {
		s := t.c.WriteStatus()
		if s.Terminal() {
			r.reap(id, t, now)
			continue
		}
		if !s.Armable() || len(t.owed) == 0 {
			continue
		}

		mean := t.owed[0]
		if t.c.BeginWrite(protocol.EncodeResponse(mean)) {
			t.owed = t.owed[1:]
			r.answered.Add(1)
			r.logger.Debug("mean sent", "conn_id", id, "mean", mean)
			if r.observer != nil {
				r.observer.MeanSent(id, mean)
			}
		}
	}
}

// reap removes a connection from the live set and closes it.
func (r *Registry) reap(id uint64, t *tracked, now time.Time) {
	delete(r.live, id)
	t.c.Close()
	r.agg.Release(id, now)
	r.reaped.Add(1)

	read, write := t.c.ReadStatus(), t.c.WriteStatus()
	r.logger.Info("connection reaped",
		"conn_id", id,
		"read", read.String(),
		"write", write.String(),
	)
	if r.observer != nil {
		r.observer.Reaped(id, read, write)
	}
}

// shutdown snapshots every aggregate, then closes all connections,
// including ones registered but never admitted.
func (r *Registry) shutdown() {
	r.regMu.Lock()
	r.stopped = true
	r.regMu.Unlock()

	now := time.Now()
	taken := 0
	for _, id := range r.agg.IDs() {
		if r.enqueue(id, now) {
			taken++
		}
	}

	closed := 0
	for id, t := range r.live {
		t.c.Close()
		t.c.Wait()
		delete(r.live, id)
		closed++
	}
	r.inbound.Drain(func(c *conn.Connection) {
		c.Close()
		closed++
	})

	r.live64.Store(0)
	r.logger.Info("registry stopped", "count", closed, "snapshots", taken)
}
