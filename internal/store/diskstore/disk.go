// Package diskstore implements a disk-based filesystem storage backend.
package diskstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/discochess/pricecache/internal/codec"
	"github.com/discochess/pricecache/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// ErrInvalidKey is returned for keys that would escape the store root.
var ErrInvalidKey = errors.New("diskstore: invalid key")

// Store is a disk-based filesystem storage backend.
// Each key is stored as one file below the root; "/" in keys maps to
// subdirectories.
type Store struct {
	root  string
	codec codec.Codec
}

// New creates a new disk store rooted at the given directory.
// The directory must exist. The codec handles compression/decompression.
func New(root string, codec codec.Codec) (*Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	return &Store{
		root:  root,
		codec: codec,
	}, nil
}

// Get reads and decompresses the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	// Check for cancellation before starting I/O.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}

	compressed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("reading key: %w", err)
	}

	// Decompress using codec.
	reader, err := s.codec.Reader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("creating decompressor: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing value: %w", err)
	}

	return data, nil
}

// Set compresses value and writes it under key.
// The file is written to a temporary name and renamed into place.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	var buf bytes.Buffer
	writer, err := s.codec.Writer(&buf)
	if err != nil {
		return fmt.Errorf("creating compressor: %w", err)
	}
	if _, err := writer.Write(value); err != nil {
		writer.Close()
		return fmt.Errorf("compressing value: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("compressing value: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// RemoveMany deletes the files for keys. Missing files are ignored.
func (s *Store) RemoveMany(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		path, err := s.keyPath(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("removing %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases any resources held by the store.
func (s *Store) Close() error {
	return nil
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// keyPath returns the filesystem path for a key.
func (s *Store) keyPath(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}

	name := filepath.Join(s.root, filepath.FromSlash(key))
	if ext := s.codec.Extension(); ext != "" {
		name += "." + ext
	}
	return name, nil
}
