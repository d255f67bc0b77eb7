package dump

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps the latest block per connection in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[uint64]Block
	writes int
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blocks: make(map[uint64]Block)}
}

// Put stores a copy of b, replacing any previous block for b.ConnID.
func (s *MemoryStore) Put(ctx context.Context, b Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	b.Values = slices.Clone(b.Values)
	s.blocks[b.ConnID] = b
	s.writes++
	return nil
}

// Get returns the stored block for connID.
func (s *MemoryStore) Get(connID uint64) (Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blocks[connID]
	if ok {
		b.Values = slices.Clone(b.Values)
	}
	return b, ok
}

// Len returns the number of connections stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

// Writes returns the number of successful Put calls.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Close marks the store closed. Stored blocks remain readable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
