package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/discochess/pricecache/internal/index"
	"github.com/discochess/pricecache/internal/record"
	"github.com/discochess/pricecache/internal/stats"
	"github.com/discochess/pricecache/internal/store"
)

// SchemaVersion identifies the persisted layout. Bumping it wipes every
// persisted cache on the next Initialize.
const SchemaVersion = "3"

const (
	keyPrefix       = "pricecache/"
	versionKey      = keyPrefix + "version"
	metaKey         = keyPrefix + "meta"
	recordKeyPrefix = keyPrefix + "records/"
)

// Meta is the persisted metadata describing the shard layout.
type Meta struct {
	Version     string    `json:"version"`
	Shards      int       `json:"shards"`
	Strategy    string    `json:"strategy"`
	Records     int       `json:"records"`
	PersistedAt time.Time `json:"persisted_at"`

	// LastResyncAt is the start time of the last complete pull of the
	// remote index. Zero means the cache was never resynced.
	LastResyncAt time.Time `json:"last_resync_at"`
}

// RecordKey returns the store key of a record shard.
func RecordKey(shardID int) string {
	return fmt.Sprintf("%s%04d", recordKeyPrefix, shardID)
}

func recordKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = RecordKey(i)
	}
	return keys
}

// Initialize loads the persisted cache. It runs once; concurrent and later
// callers block until the first run completes and share its result. Load
// failures are logged and leave the cache initialized but empty.
func (e *Engine) Initialize(ctx context.Context) {
	e.initOnce.Do(func() {
		start := time.Now()
		e.initialize(ctx)
		e.logger.Info("cache initialized",
			zap.Int("records", e.Stats().UniqueCodes),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (e *Engine) initialize(ctx context.Context) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	defer func() {
		e.mu.Lock()
		e.initialized = true
		unique := e.idx.Unique()
		e.mu.Unlock()
		e.stats.SetGauge(stats.MetricRecords, int64(unique))
	}()

	version, err := e.store.Get(ctx, versionKey)
	switch {
	case errors.Is(err, store.ErrNotFound) || (err == nil && string(version) != SchemaVersion):
		e.wipe(ctx, string(version))
		return
	case err != nil:
		e.logger.Warn("reading schema version failed", zap.Error(err))
		e.replacePersisted(0)
		return
	}

	e.mu.Lock()
	e.markerWritten = true
	e.mu.Unlock()

	meta, err := ReadMeta(ctx, e.store)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Warn("reading cache metadata failed", zap.Error(err))
		}
		e.replacePersisted(0)
		return
	}

	loaded, err := e.loadShards(ctx, meta.Shards)
	if err != nil {
		e.logger.Warn("loading persisted records failed", zap.Error(err))
		e.replacePersisted(meta.Shards)
		return
	}

	idx := index.New()
	for _, r := range loaded {
		n := record.Normalize(r, r.LastUpdated)
		if n.Code == "" {
			continue
		}
		idx.Put(n)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Records upserted before Initialize win over persisted ones.
	for _, r := range e.idx.Records() {
		idx.Put(r)
	}
	e.idx = idx
	e.lastPersisted = meta.PersistedAt
	e.lastResync = meta.LastResyncAt

	if meta.Shards != e.shards || meta.Strategy != e.strategy.Name() {
		e.logger.Info("shard layout changed, rewriting",
			zap.Int("fromShards", meta.Shards),
			zap.Int("toShards", e.shards),
			zap.String("fromStrategy", meta.Strategy),
			zap.String("toStrategy", e.strategy.Name()),
		)
		e.replacePersistedLocked(meta.Shards)
		e.schedulePersistLocked()
	}
}

// replacePersisted queues a rewrite of the whole persisted set after a
// failed load, so shards the engine never read cannot resurface through a
// later meta that points at them. The rewrite runs with the next persist.
func (e *Engine) replacePersisted(prevShards int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replacePersistedLocked(prevShards)
}

// replacePersistedLocked marks every shard dirty and queues shards in
// [e.shards, prevShards) for removal. e.mu must be held.
func (e *Engine) replacePersistedLocked(prevShards int) {
	for id := 0; id < e.shards; id++ {
		e.dirty[id] = struct{}{}
	}
	for id := e.shards; id < prevShards; id++ {
		e.orphans = append(e.orphans, RecordKey(id))
	}
}

// wipe removes all persisted state after a schema version mismatch and
// writes the current version marker.
func (e *Engine) wipe(ctx context.Context, found string) {
	e.logger.Info("schema version mismatch, wiping persisted cache",
		zap.String("found", found),
		zap.String("want", SchemaVersion),
	)

	shards := e.shards
	if meta, err := ReadMeta(ctx, e.store); err == nil {
		shards = max(shards, meta.Shards)
	}
	if err := e.store.RemoveMany(ctx, append(recordKeys(shards), metaKey)); err != nil {
		e.logger.Warn("wiping persisted cache failed", zap.Error(err))
	}

	e.mu.Lock()
	e.idx.Reset()
	clear(e.dirty)
	e.lastPersisted = time.Time{}
	e.lastResync = time.Time{}
	e.mu.Unlock()

	if err := e.store.Set(ctx, versionKey, []byte(SchemaVersion)); err != nil {
		e.logger.Warn("writing schema version failed", zap.Error(err))
		return
	}
	e.mu.Lock()
	e.markerWritten = true
	e.mu.Unlock()
}

// ReadMeta reads the persisted metadata from st.
func ReadMeta(ctx context.Context, st store.Store) (Meta, error) {
	var meta Meta
	data, err := st.Get(ctx, metaKey)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("decoding metadata: %w", err)
	}
	return meta, nil
}

// ReadShard reads and decodes one persisted shard from st. A missing
// shard returns store.ErrNotFound.
func ReadShard(ctx context.Context, st store.Store, id int) ([]record.Record, error) {
	data, err := st.Get(ctx, RecordKey(id))
	if err != nil {
		return nil, err
	}

	var records []record.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	return records, nil
}

// loadShards reads and decodes shards [0, n) concurrently. A missing shard
// is empty; any other failure fails the whole load.
func (e *Engine) loadShards(ctx context.Context, n int) ([]record.Record, error) {
	results := make([][]record.Record, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.loadConcurrency)
	for id := 0; id < n; id++ {
		g.Go(func() error {
			records, err := ReadShard(gctx, e.store, id)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading shard %d: %w", id, err)
			}
			results[id] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []record.Record
	for _, records := range results {
		all = append(all, records...)
	}
	return all, nil
}

// schedulePersistLocked starts the persist loop unless it is running.
// e.mu must be held.
func (e *Engine) schedulePersistLocked() {
	if e.persisting {
		return
	}
	e.persisting = true
	e.persistDone = make(chan struct{})
	go e.persistLoop(e.persistDone)
}

// persistLoop writes dirty shards and metadata until none are left. Each pass snapshots
// the dirty shards under the lock, so a later pass always writes newer
// data than an earlier one. On failure the pass's shards are re-marked
// dirty and the loop stops until the next Upsert.
func (e *Engine) persistLoop(done chan struct{}) {
	defer close(done)

	for {
		e.persistMu.Lock()
		snap, ok := e.takeSnapshot()
		if !ok {
			e.persistMu.Unlock()
			return
		}

		err := e.writeSnapshot(context.Background(), snap)
		e.persistMu.Unlock()

		if err != nil {
			e.stats.IncCounter(stats.MetricPersistFailures, 1)
			e.logger.Warn("persisting cache failed", zap.Error(err))

			e.mu.Lock()
			for id := range snap.shards {
				e.dirty[id] = struct{}{}
			}
			e.orphans = append(e.orphans, snap.orphans...)
			e.markerWritten = e.markerWritten || snap.marker
			e.metaDirty = true
			e.persisting = false
			e.mu.Unlock()
			return
		}
	}
}

type snapshot struct {
	shards  map[int][]record.Record
	orphans []string
	meta    Meta
	// marker is set when the version marker still has to be written.
	marker bool
}

// takeSnapshot collects the dirty shards and clears the dirty set. It
// returns false and marks the loop stopped when there is nothing to write.
func (e *Engine) takeSnapshot() (snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.dirty) == 0 && len(e.orphans) == 0 && !e.metaDirty {
		e.persisting = false
		return snapshot{}, false
	}

	snap := snapshot{
		shards:  make(map[int][]record.Record, len(e.dirty)),
		orphans: e.orphans,
		marker:  !e.markerWritten,
		meta: Meta{
			Version:      SchemaVersion,
			Shards:       e.shards,
			Strategy:     e.strategy.Name(),
			Records:      e.idx.Unique(),
			PersistedAt:  e.now(),
			LastResyncAt: e.lastResync,
		},
	}
	for id := range e.dirty {
		snap.shards[id] = []record.Record{}
	}
	for _, r := range e.idx.Records() {
		id := e.shardFor(r.Code)
		if rs, ok := snap.shards[id]; ok {
			snap.shards[id] = append(rs, *r)
		}
	}

	clear(e.dirty)
	e.orphans = nil
	e.markerWritten = true
	e.metaDirty = false
	return snap, true
}

func (e *Engine) writeSnapshot(ctx context.Context, snap snapshot) error {
	if snap.marker {
		if err := e.store.Set(ctx, versionKey, []byte(SchemaVersion)); err != nil {
			return fmt.Errorf("writing schema version: %w", err)
		}
	}

	for id, records := range snap.shards {
		data, err := json.Marshal(records)
		if err != nil {
			return fmt.Errorf("encoding shard %d: %w", id, err)
		}
		if err := e.store.Set(ctx, RecordKey(id), data); err != nil {
			return fmt.Errorf("writing shard %d: %w", id, err)
		}
	}

	if len(snap.orphans) > 0 {
		if err := e.store.RemoveMany(ctx, snap.orphans); err != nil {
			return fmt.Errorf("removing orphaned shards: %w", err)
		}
	}

	data, err := json.Marshal(snap.meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := e.store.Set(ctx, metaKey, data); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}

	e.mu.Lock()
	e.lastPersisted = snap.meta.PersistedAt
	e.mu.Unlock()

	e.logger.Debug("cache persisted",
		zap.Int("shards", len(snap.shards)),
		zap.Int("records", snap.meta.Records),
	)
	return nil
}
