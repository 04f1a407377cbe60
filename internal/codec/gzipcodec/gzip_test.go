package gzipcodec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/discochess/pricecache/internal/record"
)

func compress(t *testing.T, c *Codec, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := c.Writer(&buf)
	if err != nil {
		t.Fatalf("Writer() error = %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return buf.Bytes()
}

func decompress(t *testing.T, c *Codec, data []byte) []byte {
	t.Helper()
	r, err := c.Reader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Reader() error = %v", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return out
}

// shard builds a persisted record shard the way the cache engine encodes it.
func shard(n int) []record.Record {
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := make([]record.Record, n)
	for i := range records {
		records[i] = *record.Normalize(record.Record{
			RawCode:     fmt.Sprintf("00781-%04d-10", i),
			ProductName: fmt.Sprintf("Lisinopril %dmg tablets", 5+i%4*5),
			Distributors: []record.Quote{
				{Name: "Northwind", FullUnitPrice: float64(100+i) / 100},
				{Name: "Contoso", PartialUnitPrice: float64(250+i) / 100},
			},
		}, stamp)
	}
	return records
}

func TestCodec_RecordShardRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		records int
	}{
		{"empty shard", 0},
		{"single record", 1},
		{"full shard", 500},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := shard(tt.records)
			encoded, err := json.Marshal(want)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			compressed := compress(t, c, encoded)
			if tt.records >= 500 && len(compressed) >= len(encoded) {
				t.Errorf("compressed shard = %d bytes, want fewer than %d", len(compressed), len(encoded))
			}

			var got []record.Record
			if err := json.Unmarshal(decompress(t, c, compressed), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("decoded shard = %d records, want %d identical records", len(got), len(want))
			}
		})
	}
}

func TestCodec_WritesGzipHeader(t *testing.T) {
	// Persisted shards stay readable by standard gzip tooling.
	c := New()
	data := compress(t, c, []byte(`[{"code":"00093226301"}]`))
	if data[0] != 0x1f || data[1] != 0x8b {
		t.Errorf("header = %x, want gzip magic 1f8b", data[:2])
	}
}

func TestCodec_RejectsCorruptShard(t *testing.T) {
	if _, err := New().Reader(bytes.NewReader([]byte("{not gzip"))); err == nil {
		t.Error("Reader() error = nil, want an error for non-gzip input")
	}
}

func TestCodec_Extension(t *testing.T) {
	if got := New().Extension(); got != "gz" {
		t.Errorf("Extension() = %q, want %q", got, "gz")
	}
}
