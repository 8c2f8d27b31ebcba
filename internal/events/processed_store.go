package events

import (
	"context"
	"sync"
)

const defaultMemoryCapacity = 10000

// ProcessedSet records webhook message identifiers that were already handled.
type ProcessedSet interface {
	// MarkIfNew records id and reports whether it had not been seen before.
	// The check and the record are atomic with respect to concurrent calls.
	MarkIfNew(ctx context.Context, id string) (bool, error)
}

// MemorySet is a bounded in-process ProcessedSet. Once capacity is reached
// the oldest recorded identifiers are evicted first, so a very old redelivery
// may slip through; the bound keeps a long-lived process from growing without
// limit.
type MemorySet struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string
	capacity int
}

// NewMemorySet creates a bounded in-memory set. A non-positive capacity
// falls back to the default of 10000 identifiers.
func NewMemorySet(capacity int) *MemorySet {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemorySet{
		seen:     make(map[string]struct{}, capacity),
		capacity: capacity,
	}
}

// MarkIfNew implements ProcessedSet. It never fails.
func (s *MemorySet) MarkIfNew(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return false, nil
	}

	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.seen, oldest)
	}

	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return true, nil
}

// Len reports the number of identifiers currently recorded.
func (s *MemorySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
