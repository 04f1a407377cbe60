// Package gcsstore implements a Google Cloud Storage backend.
package gcsstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/discochess/pricecache/internal/codec"
	"github.com/discochess/pricecache/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Store is a Google Cloud Storage backend.
type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
	codec  codec.Codec
}

// New creates a new GCS store.
// The bucket must already exist.
// The codec handles compression/decompression.
func New(ctx context.Context, bucketName string, c codec.Codec, opts ...Option) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	s := &Store{
		client: client,
		bucket: client.Bucket(bucketName),
		codec:  c,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets a key prefix for all operations.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = strings.TrimSuffix(prefix, "/")
		if s.prefix != "" {
			s.prefix += "/"
		}
	}
}

// Get reads and decompresses the object stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	// Check for cancellation before starting.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	reader, err := s.bucket.Object(s.objectKey(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("creating reader: %w", err)
	}
	defer reader.Close()

	// Decompress using codec.
	decompressor, err := s.codec.Reader(reader)
	if err != nil {
		return nil, fmt.Errorf("creating decompressor: %w", err)
	}
	defer decompressor.Close()

	data, err := io.ReadAll(decompressor)
	if err != nil {
		return nil, fmt.Errorf("decompressing object: %w", err)
	}

	return data, nil
}

// Set compresses value and uploads it under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	var buf bytes.Buffer
	cw, err := s.codec.Writer(&buf)
	if err != nil {
		return fmt.Errorf("creating compressor: %w", err)
	}
	if _, err := cw.Write(value); err != nil {
		cw.Close()
		return fmt.Errorf("compressing object: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("compressing object: %w", err)
	}

	// Cancelling the context before Close aborts the upload.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ow := s.bucket.Object(s.objectKey(key)).NewWriter(ctx)
	if _, err := ow.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing object: %w", err)
	}
	if err := ow.Close(); err != nil {
		return fmt.Errorf("writing object: %w", err)
	}
	return nil
}

// RemoveMany deletes the objects for keys. Missing objects are ignored.
func (s *Store) RemoveMany(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		err := s.bucket.Object(s.objectKey(key)).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			errs = append(errs, fmt.Errorf("deleting %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases resources.
func (s *Store) Close() error {
	return s.client.Close()
}

// objectKey returns the full object name for a store key.
func (s *Store) objectKey(key string) string {
	name := s.prefix + key
	if ext := s.codec.Extension(); ext != "" {
		name += "." + ext
	}
	return name
}
