// Package cache implements the local pricing cache engine: an in-memory
// index of normalized records that is loaded from and persisted to a
// store.Store.
//
// Persistence is best effort. Lookups and searches never fail; store and
// decode errors are logged and leave the cache empty or unchanged.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/pricecache/internal/index"
	"github.com/discochess/pricecache/internal/record"
	"github.com/discochess/pricecache/internal/search"
	"github.com/discochess/pricecache/internal/shard"
	"github.com/discochess/pricecache/internal/stats"
	"github.com/discochess/pricecache/internal/store"
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("cache: engine closed")

// Stats describes the current cache contents.
type Stats struct {
	// Size counts index keys. A record reachable by canonical and alias
	// code counts twice.
	Size int
	// UniqueCodes counts distinct records.
	UniqueCodes int
	// TokenCount counts distinct product-name tokens.
	TokenCount  int
	Initialized bool
}

// Engine owns the index and its persisted copy.
// An Engine is safe for concurrent use.
type Engine struct {
	store           store.Store
	strategy        shard.Strategy
	shards          int
	loadConcurrency int
	searchLimit     int
	stats           stats.Collector
	logger          *zap.Logger
	now             func() time.Time

	initOnce sync.Once

	// persistMu serializes store writes: the persist loop, Clear and
	// Initialize never interleave.
	persistMu sync.Mutex

	mu            sync.RWMutex
	idx           *index.Index
	initialized   bool
	closed        bool
	lastPersisted time.Time
	lastResync    time.Time
	dirty         map[int]struct{}
	orphans       []string
	markerWritten bool
	persisting    bool
	persistDone   chan struct{}

	// metaDirty is set when the metadata changed without any shard.
	metaDirty bool
}

// New creates an engine backed by st. The engine starts empty; call
// Initialize to load persisted records.
func New(st store.Store, opts ...Option) *Engine {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	return &Engine{
		store:           st,
		strategy:        cfg.strategy,
		shards:          cfg.shards,
		loadConcurrency: cfg.loadConcurrency,
		searchLimit:     cfg.searchLimit,
		stats:           cfg.stats,
		logger:          cfg.logger.Named("cache"),
		now:             cfg.now,
		idx:             index.New(),
		dirty:           make(map[int]struct{}),
	}
}

// Upsert normalizes records and writes them into the index, replacing any
// record at the same code. Persistence is scheduled in the background.
// Records whose code is empty after normalization are skipped. The stored
// records are returned in input order.
func (e *Engine) Upsert(records []record.Record) []*record.Record {
	if len(records) == 0 {
		return nil
	}

	now := e.now()
	stored := make([]*record.Record, 0, len(records))

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.logger.Warn("upsert on closed engine dropped", zap.Int("records", len(records)))
		return nil
	}

	for _, in := range records {
		r := record.Normalize(in, now)
		if r.Code == "" {
			e.logger.Warn("skipping record without code",
				zap.String("productName", in.ProductName),
			)
			continue
		}
		e.idx.Put(r)
		e.dirty[e.shardFor(r.Code)] = struct{}{}
		stored = append(stored, r)
	}
	unique := e.idx.Unique()
	if len(stored) > 0 {
		e.schedulePersistLocked()
	}
	e.mu.Unlock()

	e.stats.IncCounter(stats.MetricUpsertedRecords, int64(len(stored)))
	e.stats.SetGauge(stats.MetricRecords, int64(unique))
	return stored
}

// Lookup returns the record for a code in raw or canonical form.
func (e *Engine) Lookup(code string) (*record.Record, bool) {
	e.stats.IncCounter(stats.MetricLookups, 1)

	e.mu.RLock()
	r, ok := e.idx.Get(record.NormalizeCode(code))
	if !ok {
		r, ok = e.idx.Get(record.AliasCode(code))
	}
	e.mu.RUnlock()

	if ok {
		e.stats.IncCounter(stats.MetricLookupHits, 1)
	} else {
		e.stats.IncCounter(stats.MetricLookupMisses, 1)
	}
	return r, ok
}

// Search runs a ranked local search. Returned records must not be modified.
func (e *Engine) Search(query string) []*record.Record {
	e.mu.RLock()
	results := search.Search(e.idx, query, e.searchLimit)
	e.mu.RUnlock()

	e.stats.IncCounter(stats.MetricSearches, 1)
	e.stats.ObserveHistogram(stats.MetricSearchResults, float64(len(results)))
	return results
}

// Records returns every distinct record ordered by code.
func (e *Engine) Records() []*record.Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx.Records()
}

// Stats returns a snapshot of the cache size.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Size:        e.idx.Len(),
		UniqueCodes: e.idx.Unique(),
		TokenCount:  e.idx.TokenCount(),
		Initialized: e.initialized,
	}
}

// LastPersisted returns the time of the last successful persist, or the
// zero time if the cache was never persisted.
func (e *Engine) LastPersisted() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastPersisted
}

// LastResync returns the start time of the last complete resync, or the
// zero time if the cache was never resynced.
func (e *Engine) LastResync() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastResync
}

// MarkResynced records that a pull of the whole remote index that started
// at t has been merged into the cache. The time is persisted with the
// metadata and bounds the next incremental pull.
func (e *Engine) MarkResynced(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !t.After(e.lastResync) {
		return
	}
	e.lastResync = t
	e.metaDirty = true
	e.schedulePersistLocked()
}

// IsStale reports whether the cache is empty or was last persisted more
// than window ago.
func (e *Engine) IsStale(window time.Duration) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.idx.Unique() == 0 || e.lastPersisted.IsZero() {
		return true
	}
	return e.now().Sub(e.lastPersisted) > window
}

// Clear empties the index and removes every persisted key.
func (e *Engine) Clear(ctx context.Context) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	shards := e.shards
	e.idx.Reset()
	clear(e.dirty)
	e.orphans = nil
	e.lastPersisted = time.Time{}
	e.lastResync = time.Time{}
	e.metaDirty = false
	e.mu.Unlock()

	e.stats.SetGauge(stats.MetricRecords, 0)

	keys := append(recordKeys(shards), metaKey)
	if err := e.store.RemoveMany(ctx, keys); err != nil {
		e.logger.Warn("clearing persisted records failed", zap.Error(err))
		return err
	}
	e.logger.Info("cache cleared")
	return nil
}

// Flush waits until background persistence is idle or ctx is done.
func (e *Engine) Flush(ctx context.Context) error {
	for {
		e.mu.RLock()
		running, done := e.persisting, e.persistDone
		e.mu.RUnlock()
		if !running {
			return nil
		}

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close flushes pending persistence and closes the store.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	e.mu.Unlock()

	if err := e.Flush(context.Background()); err != nil {
		return err
	}
	return e.store.Close()
}

func (e *Engine) shardFor(code string) int {
	return e.strategy.ShardID(code, e.shards)
}
