package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store implementation, the default backing
// and the fallback target whenever a configured Redis store can't connect.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if e.expired(time.Now()) {
		delete(s.entries, key)
		return nil, ErrNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = &entry{value: value, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current int64
	if e, ok := s.entries[key]; ok && !e.expired(time.Now()) {
		current, _ = strconv.ParseInt(string(e.value), 10, 64)
	}
	current += delta
	existing := s.entries[key]
	var expiresAt time.Time
	if existing != nil && !existing.expired(time.Now()) {
		expiresAt = existing.expiresAt
	}
	s.entries[key] = &entry{value: []byte(strconv.FormatInt(current, 10)), expiresAt: expiresAt}
	return current, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return ErrNotFound
	}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
	return nil
}

// Pipeline applies ops in order, stopping at the first error. Each op
// takes the store's lock on its own, so the batch is not atomic: other
// callers can observe or interleave with a partly applied batch.
func (s *MemoryStore) Pipeline(ctx context.Context, ops []PipelineOp) error {
	for _, op := range ops {
		switch op.Kind {
		case "set":
			if err := s.Set(ctx, op.Key, op.Value, op.TTL); err != nil {
				return err
			}
		case "increment":
			if _, err := s.Increment(ctx, op.Key, op.Delta); err != nil {
				return err
			}
		case "expire":
			if err := s.Expire(ctx, op.Key, op.TTL); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
