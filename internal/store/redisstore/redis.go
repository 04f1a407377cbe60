// Package redisstore implements a Redis storage backend, so several
// processes on one host can share a persisted cache.
package redisstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/discochess/pricecache/internal/codec"
	"github.com/discochess/pricecache/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Store is a Redis storage backend.
type Store struct {
	client    *redis.Client
	prefix    string
	codec     codec.Codec
	ownClient bool
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets a key prefix for all operations, e.g. "tenant-a".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = strings.TrimSuffix(prefix, ":")
		if s.prefix != "" {
			s.prefix += ":"
		}
	}
}

// New wraps an existing client. The caller keeps ownership of the client;
// Close does not close it.
func New(client *redis.Client, c codec.Codec, opts ...Option) *Store {
	s := &Store{
		client: client,
		codec:  c,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to the Redis server at addr and verifies the connection.
// The returned store owns the client.
func Dial(ctx context.Context, addr, password string, db int, c codec.Codec, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s := New(client, c, opts...)
	s.ownClient = true
	return s, nil
}

// Get reads and decompresses the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	compressed, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	r, err := s.codec.Reader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("creating decompressor: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing value: %w", err)
	}
	return data, nil
}

// Set compresses value and stores it under key without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	var buf bytes.Buffer
	w, err := s.codec.Writer(&buf)
	if err != nil {
		return fmt.Errorf("creating compressor: %w", err)
	}
	if _, err := w.Write(value); err != nil {
		w.Close()
		return fmt.Errorf("compressing value: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("compressing value: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+key, buf.Bytes(), 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// RemoveMany deletes keys with a single DEL.
func (s *Store) RemoveMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the client if the store created it.
func (s *Store) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}
