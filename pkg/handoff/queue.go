// Package handoff provides the multi-producer, single-consumer queue used to
// move work between goroutines: accepted connections into the registry loop
// and dump blocks into the persistence worker.
//
// The queue is double buffered. Producers append to a write buffer under a
// mutex; the consumer drains a private read buffer without locking and only
// takes the mutex to swap the two buffers once its own buffer is empty. Lock
// traffic on the consumer side is therefore one acquisition per batch rather
// than one per item.
//
// # Single consumer
//
// Pop, Drain and the read buffer belong to exactly one goroutine. Calling Pop
// from two goroutines at once is a data race and breaks the exactly-once
// delivery guarantee; the swap step cannot be shared without a redesign.
package handoff

import (
	"sync"
	"sync/atomic"
)

// Queue is a double-buffered MPSC queue. The zero value is ready to use.
type Queue[T any] struct {
	mu    sync.Mutex
	write []T // guarded by mu

	// Consumer-owned.
	read []T
	head int

	pending atomic.Int64
}

// New returns an empty queue with room for capacity items per buffer.
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{
		write: make([]T, 0, capacity),
		read:  make([]T, 0, capacity),
	}
}

// Push enqueues item. Safe for any number of concurrent producers.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.write = append(q.write, item)
	q.pending.Add(1)
	q.mu.Unlock()
}

// Pop dequeues the next item. It returns false only when nothing was pending
// at the moment of the swap. Must only be called from the consumer goroutine.
func (q *Queue[T]) Pop() (T, bool) {
	if item, ok := q.popRead(); ok {
		return item, true
	}

	// Read buffer is exhausted: hand its storage back to producers and take
	// whatever they have written since the last swap.
	q.mu.Lock()
	q.read, q.write = q.write, q.read[:0]
	q.mu.Unlock()
	q.head = 0

	return q.popRead()
}

// Drain pops until the queue is empty, calling fn for each item, and returns
// the number of items delivered. Consumer goroutine only.
func (q *Queue[T]) Drain(fn func(T)) int {
	n := 0
	for {
		item, ok := q.Pop()
		if !ok {
			return n
		}
		fn(item)
		n++
	}
}

// Len reports the number of items pushed but not yet popped. It is safe to
// call from any goroutine and is intended for metrics; the value may be stale
// by the time it is used.
func (q *Queue[T]) Len() int {
	return int(q.pending.Load())
}

func (q *Queue[T]) popRead() (T, bool) {
	var zero T
	if q.head >= len(q.read) {
		return zero, false
	}
	item := q.read[q.head]
	q.read[q.head] = zero // release the reference for GC
	q.head++
	q.pending.Add(-1)
	return item, true
}
