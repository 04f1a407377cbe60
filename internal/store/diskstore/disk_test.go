package diskstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/discochess/pricecache/internal/codec/noopcodec"
	"github.com/discochess/pricecache/internal/codec/zstdcodec"
	"github.com/discochess/pricecache/internal/store"
)

func TestStore_Get(t *testing.T) {
	dir := t.TempDir()
	codec := noopcodec.New() // Use noop codec for simple testing.

	// Create value file manually.
	keyDir := filepath.Join(dir, "pricecache")
	if err := os.MkdirAll(keyDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	data := []byte("cached value")
	valuePath := filepath.Join(keyDir, "meta") // No extension with noop codec.
	if err := os.WriteFile(valuePath, data, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	s, err := New(dir, codec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	got, err := s.Get(context.Background(), "pricecache/meta")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if string(got) != string(data) {
		t.Errorf("Get() = %q, want %q", got, data)
	}
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, zstdcodec.New())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	want := []byte(`[{"code":"00093226301"}]`)

	if err := s.Set(ctx, "pricecache/records/0001", want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "pricecache", "records", "0001.zst")); err != nil {
		t.Errorf("expected compressed file on disk: %v", err)
	}

	got, err := s.Get(ctx, "pricecache/records/0001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Get() = %q, want %q", got, want)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, noopcodec.New())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	_, err = s.Get(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_RemoveMany(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, noopcodec.New())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	for _, k := range []string{"a", "b/c"} {
		if err := s.Set(ctx, k, []byte(k)); err != nil {
			t.Fatalf("Set(%q) error = %v", k, err)
		}
	}

	if err := s.RemoveMany(ctx, []string{"a", "b/c", "never-written"}); err != nil {
		t.Fatalf("RemoveMany() error = %v", err)
	}

	for _, k := range []string{"a", "b/c"} {
		if _, err := s.Get(ctx, k); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get(%q) after RemoveMany error = %v, want ErrNotFound", k, err)
		}
	}
}

func TestStore_InvalidKey(t *testing.T) {
	s, err := New(t.TempDir(), noopcodec.New())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, key := range []string{"", "/abs", "../escape", "a//b"} {
		if err := s.Set(context.Background(), key, nil); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Set(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path", noopcodec.New())
	if err == nil {
		t.Error("New() with invalid path should return error")
	}
}

func TestNew_NotDirectory(t *testing.T) {
	// Create a file, not a directory.
	f, err := os.CreateTemp("", "test")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	defer os.Remove(f.Name())

	_, err = New(f.Name(), noopcodec.New())
	if err == nil {
		t.Error("New() with file (not directory) should return error")
	}
}
