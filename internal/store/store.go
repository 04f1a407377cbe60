// Package store defines the persistent key/value backend used to persist the
// pricing cache between sessions.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("store: key not found")

// Store defines the interface for storage backends.
// Implementations handle key layout and encoding details internally.
type Store interface {
	// Get reads the value stored under key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// RemoveMany deletes the given keys. Missing keys are not an error.
	RemoveMany(ctx context.Context, keys []string) error

	// Close releases any resources held by the store.
	Close() error
}
