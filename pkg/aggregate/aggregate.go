// Package aggregate keeps, per connection, the set of squares of every
// distinct value received and answers the running integer mean.
//
// An Aggregator is not safe for concurrent use. The registry goroutine owns it.
package aggregate

import (
	"slices"
	"time"
)

// Options configures an Aggregator.
type Options struct {
	// RetentionTTL is how long an entry survives after Release.
	// Zero keeps released entries forever.
	RetentionTTL time.Duration
}

type entry struct {
	squares  map[uint64]struct{}
	sum      uint64
	released time.Time
}

// Aggregator maps connection ids to sets of squared values.
type Aggregator struct {
	opts    Options
	entries map[uint64]*entry
}

// New creates an empty Aggregator.
func New(opts Options) *Aggregator {
	return &Aggregator{
		opts:    opts,
		entries: make(map[uint64]*entry),
	}
}

// Record inserts value*value into the set for id, creating the entry on
// first use. Equal squares collapse.
func (a *Aggregator) Record(id uint64, value uint32) {
	e, ok := a.entries[id]
	if !ok {
		e = &entry{squares: make(map[uint64]struct{})}
		a.entries[id] = e
	}
	sq := uint64(value) * uint64(value)
	if _, dup := e.squares[sq]; dup {
		return
	}
	e.squares[sq] = struct{}{}
	e.sum += sq
}

// Mean returns the truncating integer mean of the set for id.
// ok is false if id has no entry.
func (a *Aggregator) Mean(id uint64) (mean uint64, ok bool) {
	e, ok := a.entries[id]
	if !ok || len(e.squares) == 0 {
		return 0, false
	}
	return e.sum / uint64(len(e.squares)), true
}

// Snapshot returns a sorted copy of the set for id.
func (a *Aggregator) Snapshot(id uint64) ([]uint64, bool) {
	e, ok := a.entries[id]
	if !ok {
		return nil, false
	}
	values := make([]uint64, 0, len(e.squares))
	for sq := range e.squares {
		values = append(values, sq)
	}
	slices.Sort(values)
	return values, true
}

// Has reports whether id has an entry.
func (a *Aggregator) Has(id uint64) bool {
	_, ok := a.entries[id]
	return ok
}

// Len returns the number of entries, live and released.
func (a *Aggregator) Len() int { return len(a.entries) }

// IDs returns every id with an entry, ascending.
func (a *Aggregator) IDs() []uint64 {
	ids := make([]uint64, 0, len(a.entries))
	for id := range a.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Release marks the entry for id as belonging to a closed connection.
// It is a no-op for unknown ids or ids already released.
func (a *Aggregator) Release(id uint64, now time.Time) {
	if e, ok := a.entries[id]; ok && e.released.IsZero() {
		e.released = now
	}
}

// Sweep drops entries released more than RetentionTTL before now and
// returns how many were dropped. It does nothing when RetentionTTL is zero.
func (a *Aggregator) Sweep(now time.Time) int {
	if a.opts.RetentionTTL <= 0 {
		return 0
	}
	dropped := 0
	for id, e := range a.entries {
		if e.released.IsZero() {
			continue
		}
		if now.Sub(e.released) > a.opts.RetentionTTL {
			delete(a.entries, id)
			dropped++
		}
	}
	return dropped
}
