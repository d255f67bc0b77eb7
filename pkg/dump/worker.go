package dump

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/sqmean/pkg/handoff"
)

// DefaultInterval is the default flush cadence.
const DefaultInterval = 5 * time.Second

// defaultTracerName is the tracer used when none is configured.
const defaultTracerName = "sqmean/dump"

// Observer receives flush outcomes. It is called from the worker goroutine.
type Observer interface {
	BlockWritten(b Block, elapsed time.Duration, err error)
	BlocksDiscarded(n int)
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithInterval sets the flush cadence. Non-positive values are ignored.
func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLogger sets the worker logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithTracer sets the tracer used for flush spans.
// The default is the global provider's "sqmean/dump" tracer.
func WithTracer(t trace.Tracer) WorkerOption {
	return func(w *Worker) {
		if t != nil {
			w.tracer = t
		}
	}
}

// WithObserver registers an observer for flush outcomes.
func WithObserver(o Observer) WorkerOption {
	return func(w *Worker) { w.observer = o }
}

// WorkerStats is a point-in-time view of worker counters.
type WorkerStats struct {
	Pending   int    `json:"pending"`
	Written   uint64 `json:"written"`
	Failed    uint64 `json:"failed"`
	Discarded uint64 `json:"discarded"`
	Flushes   uint64 `json:"flushes"`
}

// Worker drains enqueued blocks and writes them to a Store.
//
// Enqueue is safe from any goroutine. The worker goroutine is the only
// consumer of the internal queue.
type Worker struct {
	store    Store
	queue    *handoff.Queue[Block]
	interval time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer

	mu       sync.Mutex
	started  bool
	stopped  bool
	done     chan struct{}
	finished chan struct{}

	written   atomic.Uint64
	failed    atomic.Uint64
	discarded atomic.Uint64
	flushes   atomic.Uint64
}

// NewWorker creates a Worker writing to store. Call Start to run it.
func NewWorker(store Store, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:    store,
		queue:    handoff.New[Block](64),
		interval: DefaultInterval,
		logger:   slog.Default(),
		tracer:   otel.Tracer(defaultTracerName),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "dump-worker")
	return w
}

// Enqueue hands a block to the worker. Blocks enqueued after Stop are
// rejected with ErrWorkerStopped.
func (w *Worker) Enqueue(b Block) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrWorkerStopped
	}
	w.queue.Push(b)
	return nil
}

// Start launches the worker goroutine. Calling Start twice is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started || w.stopped {
		return
	}
	w.started = true
	go w.run()
}

// Stop signals the worker, waits for its final flush and closes the store.
// If the worker was never started the final flush runs on the caller.
// Stop returns ctx.Err() if ctx ends before the worker exits.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started := w.started
	close(w.done)
	w.mu.Unlock()

	if !started {
		w.flush(ctx)
		close(w.finished)
	}

	select {
	case <-w.finished:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := w.store.Close(); err != nil {
		w.logger.Warn("store close failed", "error", err)
	}
	w.logger.Info("dump worker stopped",
		"written", w.written.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

// Stats returns current worker counters.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Pending:   w.queue.Len(),
		Written:   w.written.Load(),
		Failed:    w.failed.Load(),
		Discarded: w.discarded.Load(),
		Flushes:   w.flushes.Load(),
	}
}

func (w *Worker) run() {
	defer close(w.finished)

	w.logger.Info("dump worker started", "interval", w.interval)

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		w.flush(context.Background())

		select {
		case <-timer.C:
			timer.Reset(w.interval)
		case <-w.done:
			w.flush(context.Background())
			return
		}
	}
}

// flush drains the queue, keeps the first block per id and writes the
// survivors in ascending id order. It returns the number written.
func (w *Worker) flush(ctx context.Context) int {
	if w.queue.Len() == 0 {
		return 0
	}

	batch := make(map[uint64]Block)
	discarded := 0
	w.queue.Drain(func(b Block) {
		if _, seen := batch[b.ConnID]; seen {
			discarded++
			return
		}
		batch[b.ConnID] = b
	})
	if len(batch) == 0 {
		return 0
	}

	ctx, span := w.tracer.Start(ctx, "dump.flush",
		trace.WithAttributes(
			attribute.Int("dump.blocks", len(batch)),
			attribute.Int("dump.discarded", discarded),
		),
	)
	defer span.End()

	w.flushes.Add(1)
	if discarded > 0 {
		w.discarded.Add(uint64(discarded))
		if w.observer != nil {
			w.observer.BlocksDiscarded(discarded)
		}
	}

	ids := make([]uint64, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	written := 0
	for _, id := range ids {
		if w.write(ctx, batch[id]) == nil {
			written++
		}
	}

	span.SetAttributes(attribute.Int("dump.written", written))
	if written < len(ids) {
		span.SetStatus(codes.Error, "some blocks failed")
	}
	w.logger.Debug("flush complete", "count", written, "discarded", discarded)
	return written
}

func (w *Worker) write(ctx context.Context, b Block) error {
	ctx, span := w.tracer.Start(ctx, "dump.write",
		trace.WithAttributes(
			attribute.Int64("sqmean.conn_id", int64(b.ConnID)),
			attribute.Int("dump.values", len(b.Values)),
		),
	)
	defer span.End()

	start := time.Now()
	err := w.store.Put(ctx, b)
	elapsed := time.Since(start)

	if w.observer != nil {
		w.observer.BlockWritten(b, elapsed, err)
	}
	if err != nil {
		w.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Warn("dump write failed", "conn_id", b.ConnID, "error", err)
		return err
	}

	w.written.Add(1)
	w.logger.Debug("dump written", "conn_id", b.ConnID, "count", len(b.Values))
	return nil
}
