package statestore

import (
	"context"
	"sync"
)

// MemoryStore keeps encoded values in a map. Values are encoded on Set so
// callers never share memory with the store.
type MemoryStore struct {
	prefix keyspace

	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(prefix string) *MemoryStore {
	return &MemoryStore{
		prefix: keyspace(prefix),
		values: make(map[string][]byte),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k, err := s.prefix.key(key)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	data, ok := s.values[k]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := decode(key, data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := s.prefix.key(key)
	if err != nil {
		return err
	}
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.values[k] = data
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := s.prefix.key(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.values, k)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
