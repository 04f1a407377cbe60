package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/discochess/pricecache/internal/record"
	"github.com/discochess/pricecache/internal/store"
	"github.com/discochess/pricecache/internal/store/memstore"
)

// countingStore wraps a memstore, counts reads per key and can fail writes.
type countingStore struct {
	*memstore.Store

	mu    sync.Mutex
	reads map[string]int

	failSets atomic.Bool
	closed   atomic.Bool
}

func newCountingStore() *countingStore {
	return &countingStore{Store: memstore.New(), reads: make(map[string]int)}
}

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	s.reads[key]++
	s.mu.Unlock()
	return s.Store.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, value []byte) error {
	if s.failSets.Load() {
		return errors.New("disk full")
	}
	return s.Store.Set(ctx, key, value)
}

func (s *countingStore) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *countingStore) readCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[key]
}

func (s *countingStore) resetReads() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.reads)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func amoxicillin() record.Record {
	return record.Record{
		RawCode:     "00093-2263-01",
		ProductName: "Amoxicillin 500mg Capsules",
		Distributors: []record.Quote{
			{Name: "B", PartialUnitPrice: 7},
			{Name: "A", FullUnitPrice: 10},
		},
	}
}

func catalog(n int) []record.Record {
	records := make([]record.Record, n)
	for i := range records {
		records[i] = record.Record{
			RawCode:      fmt.Sprintf("%05d-%04d-01", i, i*7),
			ProductName:  fmt.Sprintf("Product %d tablets", i),
			Distributors: []record.Quote{{Name: "D", FullUnitPrice: float64(i)}},
		}
	}
	return records
}

func flush(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

func TestEngine_UpsertAndLookup(t *testing.T) {
	e := New(memstore.New())
	e.Upsert([]record.Record{amoxicillin()})

	for _, code := range []string{"00093-2263-01", "00093226301", "00093-2263-01 "} {
		r, ok := e.Lookup(code)
		if !ok {
			t.Fatalf("Lookup(%q) returned false", code)
		}
		if r.RecommendedDistributorName != "A" || r.BestFullUnitPrice != 10 {
			t.Errorf("Lookup(%q) = recommended %q best %v, want A 10",
				code, r.RecommendedDistributorName, r.BestFullUnitPrice)
		}
	}

	if _, ok := e.Lookup("99999"); ok {
		t.Error("Lookup(unknown) returned true")
	}

	st := e.Stats()
	if st.Size != 2 || st.UniqueCodes != 1 {
		t.Errorf("Stats() = %+v, want Size 2 UniqueCodes 1", st)
	}
}

func TestEngine_UpsertSkipsEmptyCode(t *testing.T) {
	e := New(memstore.New())
	e.Upsert([]record.Record{{ProductName: "no code"}, amoxicillin()})

	if got := e.Stats().UniqueCodes; got != 1 {
		t.Errorf("UniqueCodes = %d, want 1", got)
	}
}

func TestEngine_NoTokenLeak(t *testing.T) {
	e := New(memstore.New())
	r := amoxicillin()
	e.Upsert([]record.Record{r})

	r.ProductName = "Penicillin VK"
	e.Upsert([]record.Record{r})

	if got := e.Search("amoxicillin"); len(got) != 0 {
		t.Errorf("Search(amoxicillin) = %d records, want 0 after rename", len(got))
	}
	if got := e.Search("penicillin"); len(got) != 1 {
		t.Errorf("Search(penicillin) = %d records, want 1", len(got))
	}
	if got := e.Stats().TokenCount; got != 2 {
		t.Errorf("TokenCount = %d, want 2", got)
	}
}

func TestEngine_UpsertIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	e := New(memstore.New(), WithClock(fixedClock(now)))
	batch := catalog(40)

	e.Upsert(batch)
	first := e.Stats()
	var firstRecords []record.Record
	for _, r := range e.Records() {
		firstRecords = append(firstRecords, *r)
	}

	e.Upsert(batch)
	second := e.Stats()
	var secondRecords []record.Record
	for _, r := range e.Records() {
		secondRecords = append(secondRecords, *r)
	}

	if first != second {
		t.Errorf("Stats changed on re-upsert: %+v -> %+v", first, second)
	}
	if len(firstRecords) != len(secondRecords) {
		t.Fatalf("record count changed: %d -> %d", len(firstRecords), len(secondRecords))
	}
	for i := range firstRecords {
		a, b := firstRecords[i], secondRecords[i]
		if a.Code != b.Code || a.BestFullUnitPrice != b.BestFullUnitPrice || a.ProductName != b.ProductName {
			t.Errorf("record %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestEngine_PersistAndReload(t *testing.T) {
	st := newCountingStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e1 := New(st, WithShards(4), WithClock(fixedClock(now)))
	e1.Initialize(context.Background())
	e1.Upsert(append(catalog(25), amoxicillin()))
	flush(t, e1)

	if got := e1.LastPersisted(); !got.Equal(now) {
		t.Errorf("LastPersisted() = %v, want %v", got, now)
	}

	e2 := New(st, WithShards(4), WithClock(fixedClock(now)))
	e2.Initialize(context.Background())

	if got := e2.Stats().UniqueCodes; got != 26 {
		t.Fatalf("reloaded UniqueCodes = %d, want 26", got)
	}
	r, ok := e2.Lookup("00093-2263-01")
	if !ok {
		t.Fatal("reloaded Lookup returned false")
	}
	if r.Distributors[0].Name != "A" {
		t.Errorf("reloaded Distributors[0] = %q, want A", r.Distributors[0].Name)
	}
	if got := e2.Search("2263"); len(got) != 1 {
		t.Errorf("reloaded Search(2263) = %d records, want 1", len(got))
	}
	if got := e2.LastPersisted(); !got.Equal(now) {
		t.Errorf("reloaded LastPersisted() = %v, want %v", got, now)
	}
}

func TestEngine_ConcurrentInitializeReadsOnce(t *testing.T) {
	st := newCountingStore()

	seed := New(st, WithShards(8))
	seed.Initialize(context.Background())
	seed.Upsert(catalog(100))
	flush(t, seed)
	st.resetReads()

	e := New(st, WithShards(8))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Initialize(context.Background())
			if !e.Stats().Initialized {
				t.Error("Initialize() returned before initialization finished")
			}
		}()
	}
	wg.Wait()

	if got := st.readCount(versionKey); got != 1 {
		t.Errorf("version marker read %d times, want 1", got)
	}
	if got := st.readCount(metaKey); got != 1 {
		t.Errorf("metadata read %d times, want 1", got)
	}
	for id := 0; id < 8; id++ {
		if got := st.readCount(RecordKey(id)); got != 1 {
			t.Errorf("shard %d read %d times, want 1", id, got)
		}
	}
	if got := e.Stats().UniqueCodes; got != 100 {
		t.Errorf("UniqueCodes = %d, want 100", got)
	}
}

func TestEngine_VersionMismatchWipes(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(st.Set(ctx, versionKey, []byte("1")))
	must(st.Set(ctx, metaKey, []byte(`{"shards":2}`)))
	must(st.Set(ctx, RecordKey(0), []byte(`[{"code":"old"}]`)))
	must(st.Set(ctx, RecordKey(1), []byte(`[]`)))

	e := New(st, WithShards(1))
	e.Initialize(ctx)

	if got := e.Stats(); !got.Initialized || got.UniqueCodes != 0 {
		t.Errorf("Stats() = %+v, want initialized and empty", got)
	}
	for _, key := range []string{metaKey, RecordKey(0), RecordKey(1)} {
		if _, err := st.Get(ctx, key); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get(%q) error = %v, want ErrNotFound after wipe", key, err)
		}
	}
	v, err := st.Get(ctx, versionKey)
	if err != nil || string(v) != SchemaVersion {
		t.Errorf("version marker = %q, %v; want %q", v, err, SchemaVersion)
	}
}

func TestEngine_CorruptShardLeavesEmpty(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	_ = st.Set(ctx, versionKey, []byte(SchemaVersion))
	_ = st.Set(ctx, metaKey, []byte(`{"version":"`+SchemaVersion+`","shards":2,"strategy":"fnv32"}`))
	_ = st.Set(ctx, RecordKey(0), []byte(`[{"code":"ok1","raw_code":"OK-1"}]`))
	_ = st.Set(ctx, RecordKey(1), []byte(`{not json`))

	e := New(st, WithShards(2))
	e.Initialize(ctx)

	if got := e.Stats(); !got.Initialized || got.UniqueCodes != 0 {
		t.Errorf("Stats() = %+v, want initialized and empty", got)
	}
}

func TestEngine_CorruptMetaLeavesEmpty(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	_ = st.Set(ctx, versionKey, []byte(SchemaVersion))
	_ = st.Set(ctx, metaKey, []byte(`garbage`))

	e := New(st)
	e.Initialize(ctx)

	if got := e.Stats(); !got.Initialized || got.UniqueCodes != 0 {
		t.Errorf("Stats() = %+v, want initialized and empty", got)
	}
}

func TestEngine_PersistFailureRetriesLater(t *testing.T) {
	st := newCountingStore()
	e := New(st, WithShards(4))
	e.Initialize(context.Background())

	st.failSets.Store(true)
	e.Upsert(catalog(10))
	flush(t, e)

	if !e.LastPersisted().IsZero() {
		t.Error("LastPersisted() should stay zero after a failed persist")
	}
	if e.Stats().UniqueCodes != 10 {
		t.Error("a failed persist must not affect the in-memory cache")
	}

	st.failSets.Store(false)
	e.Upsert([]record.Record{amoxicillin()})
	flush(t, e)

	reloaded := New(st, WithShards(4))
	reloaded.Initialize(context.Background())
	if got := reloaded.Stats().UniqueCodes; got != 11 {
		t.Errorf("reloaded UniqueCodes = %d, want 11 (failed shards rewritten)", got)
	}
}

func TestEngine_LayoutChangeRewrites(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	e1 := New(st, WithShards(6))
	e1.Initialize(ctx)
	e1.Upsert(catalog(60))
	flush(t, e1)

	e2 := New(st, WithShards(2))
	e2.Initialize(ctx)
	flush(t, e2)

	for id := 2; id < 6; id++ {
		if slices.Contains(st.Keys(), RecordKey(id)) {
			t.Errorf("orphaned shard %d still persisted", id)
		}
	}

	e3 := New(st, WithShards(2))
	e3.Initialize(ctx)
	if got := e3.Stats().UniqueCodes; got != 60 {
		t.Errorf("UniqueCodes after layout change = %d, want 60", got)
	}
}

func TestEngine_Clear(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	e := New(st, WithShards(2))
	e.Initialize(ctx)
	e.Upsert(catalog(10))
	flush(t, e)

	if err := e.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if got := e.Stats(); got.Size != 0 || got.UniqueCodes != 0 || got.TokenCount != 0 {
		t.Errorf("Stats() after Clear = %+v, want empty", got)
	}
	if !e.LastPersisted().IsZero() {
		t.Error("LastPersisted() should be zero after Clear")
	}
	if keys := st.Keys(); !slices.Equal(keys, []string{versionKey}) {
		t.Errorf("persisted keys after Clear = %v, want only the version marker", keys)
	}
}

func TestEngine_IsStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	e := New(memstore.New(), WithClock(func() time.Time { return clock }))
	e.Initialize(context.Background())

	if !e.IsStale(time.Hour) {
		t.Error("empty cache should be stale")
	}

	e.Upsert(catalog(1))
	flush(t, e)
	if e.IsStale(time.Hour) {
		t.Error("freshly persisted cache should not be stale")
	}

	clock = now.Add(2 * time.Hour)
	if !e.IsStale(time.Hour) {
		t.Error("cache persisted two hours ago should be stale for a one hour window")
	}
}

func TestEngine_SearchReadsConsistentIndex(t *testing.T) {
	e := New(memstore.New())
	e.Upsert(catalog(50))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			e.Upsert(catalog(50))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if got := e.Search("tablets"); len(got) == 0 {
				t.Error("Search(tablets) returned no records during concurrent upserts")
				return
			}
		}
	}()
	wg.Wait()
}

func TestEngine_Close(t *testing.T) {
	st := newCountingStore()
	e := New(st)
	e.Upsert(catalog(3))

	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !st.closed.Load() {
		t.Error("Close() should close the store")
	}
	if !slices.Contains(st.Keys(), metaKey) {
		t.Error("Close() should flush pending persistence")
	}
	if err := e.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}
}

func TestEngine_UpsertReturnsStoredRecords(t *testing.T) {
	e := New(memstore.New())
	stored := e.Upsert([]record.Record{{ProductName: "skipped"}, amoxicillin(), {RawCode: "Z-9"}})

	if len(stored) != 2 {
		t.Fatalf("Upsert() returned %d records, want 2", len(stored))
	}
	if stored[0].Code != "00093226301" || stored[1].Code != "z9" {
		t.Errorf("Upsert() codes = %q, %q; want input order", stored[0].Code, stored[1].Code)
	}
	if r, _ := e.Lookup("z9"); r != stored[1] {
		t.Error("returned record should be the indexed pointer")
	}
}

func TestReadMetaAndShard(t *testing.T) {
	st := newCountingStore()
	ctx := context.Background()

	if _, err := ReadMeta(ctx, st); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ReadMeta() on empty store error = %v, want ErrNotFound", err)
	}

	e := New(st, WithShards(4))
	e.Initialize(ctx)
	e.Upsert(catalog(30))
	flush(t, e)

	meta, err := ReadMeta(ctx, st)
	if err != nil {
		t.Fatalf("ReadMeta() error = %v", err)
	}
	if meta.Version != SchemaVersion || meta.Shards != 4 || meta.Records != 30 || meta.Strategy != "fnv32" {
		t.Errorf("ReadMeta() = %+v, want version %s, 4 fnv32 shards, 30 records", meta, SchemaVersion)
	}

	var total int
	for id := 0; id < meta.Shards; id++ {
		records, err := ReadShard(ctx, st, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			t.Fatalf("ReadShard(%d) error = %v", id, err)
		}
		total += len(records)
	}
	if total != 30 {
		t.Errorf("shards hold %d records, want 30", total)
	}

	st.Set(ctx, RecordKey(0), []byte("{"))
	if _, err := ReadShard(ctx, st, 0); err == nil {
		t.Error("ReadShard() on corrupt shard returned nil error")
	}
}

func TestEngine_FailedLoadReplacesPersistedSet(t *testing.T) {
	tests := []struct {
		name    string
		shards  int
		corrupt func(ctx context.Context, st *memstore.Store)
		gone    []string
	}{
		{
			name:   "corrupt meta",
			shards: 4,
			corrupt: func(ctx context.Context, st *memstore.Store) {
				st.Set(ctx, metaKey, []byte("garbage"))
			},
		},
		{
			name:   "missing meta",
			shards: 4,
			corrupt: func(ctx context.Context, st *memstore.Store) {
				st.RemoveMany(ctx, []string{metaKey})
			},
		},
		{
			name:   "corrupt shard",
			shards: 4,
			corrupt: func(ctx context.Context, st *memstore.Store) {
				st.Set(ctx, RecordKey(2), []byte("{not json"))
			},
		},
		{
			name:   "corrupt shard with fewer shards",
			shards: 2,
			corrupt: func(ctx context.Context, st *memstore.Store) {
				st.Set(ctx, RecordKey(3), []byte("{not json"))
			},
			gone: []string{RecordKey(2), RecordKey(3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memstore.New()
			ctx := context.Background()

			first := New(st, WithShards(4))
			first.Initialize(ctx)
			first.Upsert(catalog(40))
			flush(t, first)
			tt.corrupt(ctx, st)

			second := New(st, WithShards(tt.shards))
			second.Initialize(ctx)
			if got := second.Stats().UniqueCodes; got != 0 {
				t.Fatalf("UniqueCodes after failed load = %d, want 0", got)
			}
			second.Upsert([]record.Record{amoxicillin()})
			flush(t, second)

			third := New(st, WithShards(tt.shards))
			third.Initialize(ctx)
			if got := third.Stats().UniqueCodes; got != 1 {
				t.Errorf("UniqueCodes after reopen = %d, want 1", got)
			}
			if _, ok := third.Lookup("00093-2263-01"); !ok {
				t.Error("Lookup() after reopen returned false, want the record upserted after the failed load")
			}
			for _, key := range tt.gone {
				if _, err := st.Get(ctx, key); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("Get(%q) error = %v, want ErrNotFound", key, err)
				}
			}
		})
	}
}

func TestEngine_MarkResynced(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	now := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	resynced := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	e := New(st, WithShards(2), WithClock(fixedClock(now)))
	e.Initialize(ctx)
	if got := e.LastResync(); !got.IsZero() {
		t.Errorf("LastResync() on empty cache = %v, want zero", got)
	}

	e.Upsert(catalog(5))
	flush(t, e)
	e.MarkResynced(resynced)
	flush(t, e)

	// Later interactive writes move LastPersisted but not LastResync.
	e.Upsert([]record.Record{amoxicillin()})
	flush(t, e)
	e.MarkResynced(resynced.Add(-time.Hour))

	if got := e.LastResync(); !got.Equal(resynced) {
		t.Errorf("LastResync() = %v, want %v", got, resynced)
	}
	if got := e.LastPersisted(); !got.Equal(now) {
		t.Errorf("LastPersisted() = %v, want %v", got, now)
	}

	reopened := New(st, WithShards(2))
	reopened.Initialize(ctx)
	if got := reopened.LastResync(); !got.Equal(resynced) {
		t.Errorf("reloaded LastResync() = %v, want %v", got, resynced)
	}

	if err := reopened.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got := reopened.LastResync(); !got.IsZero() {
		t.Errorf("LastResync() after Clear = %v, want zero", got)
	}
}

func TestEngine_MarkResyncedWithoutRecordsPersistsMeta(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	resynced := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	e := New(st)
	e.Initialize(ctx)
	e.MarkResynced(resynced)
	flush(t, e)

	meta, err := ReadMeta(ctx, st)
	if err != nil {
		t.Fatalf("ReadMeta() error = %v", err)
	}
	if !meta.LastResyncAt.Equal(resynced) {
		t.Errorf("ReadMeta().LastResyncAt = %v, want %v", meta.LastResyncAt, resynced)
	}
}
