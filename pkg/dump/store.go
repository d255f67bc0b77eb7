package dump

import (
	"context"
	"errors"
	"fmt"
)

// Store is durable per-connection storage. Put replaces whatever was stored
// for b.ConnID. Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, b Block) error
	Close() error
}

// Sentinel errors.
var (
	// ErrStoreClosed is returned by Put after Close.
	ErrStoreClosed = errors.New("dump: store closed")

	// ErrNotFound is returned by lookups for ids that were never written.
	ErrNotFound = errors.New("dump: not found")

	// ErrWorkerStopped is returned by Enqueue after Stop.
	ErrWorkerStopped = errors.New("dump: worker stopped")
)

// WriteError wraps a store failure with the connection and operation.
type WriteError struct {
	ConnID uint64
	Op     string // delete, write, upsert, put
	Err    error
}

// Error returns the error message with connection context.
func (e *WriteError) Error() string {
	return fmt.Sprintf("dump: conn %d: %s: %v", e.ConnID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *WriteError) Unwrap() error {
	return e.Err
}
