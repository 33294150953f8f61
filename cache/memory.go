package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. It is useful for tests and
// for sessions that only want cache semantics without persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uint64]Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[uint64]Entry),
	}
}

func (s *MemoryStore) Load(ctx context.Context, fingerprint uint64) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[fingerprint]
	if !ok {
		return Entry{}, ErrNotFound
	}

	// Hand out a copy so callers cannot mutate the cached bytes.
	data := make([]byte, len(entry.Bytes))
	copy(data, entry.Bytes)
	entry.Bytes = data

	return entry, nil
}

func (s *MemoryStore) Save(ctx context.Context, fingerprint uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[fingerprint] = Entry{
		Fingerprint: fingerprint,
		Bytes:       stored,
		CreatedAt:   time.Now(),
	}

	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, fingerprint uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, fingerprint)

	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[uint64]Entry)

	return nil
}
