package cachedstore

import (
	"context"

	"github.com/discochess/pricecache/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Store wraps another Store with caching. Writes go through to the
// underlying store first and only update the cache on success.
type Store struct {
	underlying store.Store
	backend    Backend
}

// New creates a new cached store wrapping the given store.
func New(underlying store.Store, backend Backend) *Store {
	return &Store{
		underlying: underlying,
		backend:    backend,
	}
}

// Get reads a value, checking the cache first.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if data, ok := s.backend.Get(key); ok {
		return data, nil
	}

	// Cache miss - read from underlying store.
	data, err := s.underlying.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	s.backend.Set(key, data)
	return data, nil
}

// Set writes value to the underlying store and caches it.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.underlying.Set(ctx, key, value); err != nil {
		// The underlying value is now unknown.
		s.backend.Remove(key)
		return err
	}
	s.backend.Set(key, value)
	return nil
}

// RemoveMany removes keys from the underlying store and the cache.
func (s *Store) RemoveMany(ctx context.Context, keys []string) error {
	for _, key := range keys {
		s.backend.Remove(key)
	}
	return s.underlying.RemoveMany(ctx, keys)
}

// Close closes the underlying store.
func (s *Store) Close() error {
	return s.underlying.Close()
}

// Stats returns cache statistics.
func (s *Store) Stats() Stats {
	return s.backend.Stats()
}
