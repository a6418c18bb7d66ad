package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in a mutex-guarded map. Expired entries are
// dropped lazily on access, so memory is bounded by the live key set.
// Intended for tests and single-process development runs.
type MemoryStore struct {
	opts Options

	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:    opts.withDefaults(),
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Check implements Store.
func (s *MemoryStore) Check(ctx context.Context, key string) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveState(key), nil
}

// SetInFlight implements Store.
func (s *MemoryStore) SetInFlight(ctx context.Context, key string) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prior := s.liveState(key); prior.Status != StatusAbsent {
		return prior, nil
	}
	s.entries[key] = memoryEntry{
		state:     State{Status: StatusInFlight},
		expiresAt: s.now().Add(s.opts.InFlightTTL),
	}
	return State{Status: StatusAbsent}, nil
}

// SetCompleted implements Store.
func (s *MemoryStore) SetCompleted(ctx context.Context, key string, statusCode int, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{
		state: State{
			Status: StatusCompleted,
			Record: &Record{StatusCode: statusCode, Body: body, CreatedAt: now},
		},
		expiresAt: now.Add(s.opts.CompletedTTL),
	}
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// liveState returns the non-expired state for a key, dropping the entry
// when its TTL has passed. Callers must hold s.mu.
func (s *MemoryStore) liveState(key string) State {
	e, ok := s.entries[key]
	if !ok {
		return State{Status: StatusAbsent}
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return State{Status: StatusAbsent}
	}
	return e.state
}
