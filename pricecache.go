// Package pricecache provides instant local search over distributor pricing
// records, kept consistent with a remote pricing API.
//
// Example usage:
//
//	dataDir, err := pricecache.WithDataDir("/path/to/data")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	api, err := pricecache.WithAPIURL("https://pricing.example.com/v1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := pricecache.New(dataDir, api)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Initialize(ctx); err != nil {
//	    log.Printf("cache may be stale: %v", err)
//	}
//	client.Search("amoxicillin")
//	for st := range client.Subscribe() {
//	    fmt.Println(st.Phase, len(st.Results))
//	}
package pricecache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/pricecache/internal/cache"
	"github.com/discochess/pricecache/internal/stats"
	"github.com/discochess/pricecache/internal/syncer"
)

// Sentinel errors for well-defined error conditions.
var (
	// ErrNotFound indicates the code is not in the cache.
	ErrNotFound = errors.New("pricecache: code not found")

	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("pricecache: client closed")

	// ErrNoStore indicates no store was provided.
	ErrNoStore = errors.New("pricecache: no store provided")

	// ErrOffline is reported for remote operations when no API is
	// configured.
	ErrOffline = errors.New("pricecache: no remote API configured")
)

// Stats describes the cache contents.
type Stats struct {
	// Size counts index keys; a record with an alias code counts twice.
	Size          int
	UniqueCodes   int
	TokenCount    int
	Initialized   bool
	LastPersisted time.Time
	// LastResync is the start of the last complete pull of the remote
	// index.
	LastResync time.Time
	// Stale is set when the cache is empty or older than the staleness
	// window.
	Stale bool
}

// Client answers pricing searches from the local cache and reconciles them
// with the remote API. A Client is safe for concurrent use by multiple
// goroutines.
type Client struct {
	engine      *cache.Engine
	sync        *syncer.Controller
	online      bool
	autoRefresh bool
	stats       stats.Collector
	logger      *zap.Logger
	closed      atomic.Bool
}

// New creates a new Client with the given options. A store is required;
// without an API the client serves the local cache only.
func New(opts ...Option) (*Client, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if cfg.store == nil {
		return nil, ErrNoStore
	}

	logger := cfg.logger.Named("pricecache")

	engineOpts := []cache.Option{
		cache.WithShards(cfg.shards),
		cache.WithStats(cfg.stats),
		cache.WithLogger(logger),
		cache.WithSearchLimit(cfg.searchLimit),
	}
	if cfg.shardStrategy != nil {
		engineOpts = append(engineOpts, cache.WithShardStrategy(cfg.shardStrategy))
	}
	engine := cache.New(cfg.store, engineOpts...)

	api := cfg.api
	if api == nil {
		api = offline{}
	}
	syncOpts := append([]syncer.Option{
		syncer.WithStats(cfg.stats),
		syncer.WithLogger(logger),
	}, cfg.syncOpts...)

	c := &Client{
		engine:      engine,
		sync:        syncer.New(engine, api, syncOpts...),
		online:      cfg.api != nil,
		autoRefresh: cfg.autoRefresh,
		stats:       cfg.stats,
		logger:      logger,
	}

	logger.Debug("client initialized",
		zap.Int("shards", cfg.shards),
		zap.Bool("online", c.online),
	)
	return c, nil
}

// Initialize loads the persisted cache. When an API is configured and the
// cache is stale, it then runs a full resync; a resync failure is returned
// but leaves the loaded cache usable.
func (c *Client) Initialize(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.engine.Initialize(ctx)

	if !c.online || !c.autoRefresh {
		return nil
	}
	if _, err := c.sync.EnsureFresh(ctx); err != nil {
		c.logger.Warn("refreshing stale cache failed", zap.Error(err))
		return fmt.Errorf("refreshing stale cache: %w", err)
	}
	return nil
}

// Search starts a search session for term. Results are delivered through
// State and Subscribe.
func (c *Client) Search(term string) {
	if c.closed.Load() {
		return
	}
	c.sync.Search(term)
}

// ClearResults cancels the current search session.
func (c *Client) ClearResults() {
	if c.closed.Load() {
		return
	}
	c.sync.ClearResults()
}

// State returns the latest search state.
func (c *Client) State() State {
	return c.sync.State()
}

// Subscribe returns a channel carrying the latest search state. The
// channel is closed by Close.
func (c *Client) Subscribe() <-chan State {
	return c.sync.Subscribe()
}

// LocalSearch runs a ranked search against the cache only.
func (c *Client) LocalSearch(query string) []*Record {
	return c.engine.Search(query)
}

// Lookup returns the record for a product code in raw or canonical form.
// Returns ErrNotFound if the code is not cached.
func (c *Client) Lookup(code string) (*Record, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	r, ok := c.engine.Lookup(code)
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// Records returns every cached record ordered by code.
func (c *Client) Records() []*Record {
	return c.engine.Records()
}

// RefreshCache forces a full resync from the remote index.
func (c *Client) RefreshCache(ctx context.Context) (ResyncReport, error) {
	return c.resync(ctx, false)
}

// IncrementalRefresh pulls only the records updated since the start of the
// last complete refresh.
func (c *Client) IncrementalRefresh(ctx context.Context) (ResyncReport, error) {
	return c.resync(ctx, true)
}

func (c *Client) resync(ctx context.Context, incremental bool) (ResyncReport, error) {
	if c.closed.Load() {
		return ResyncReport{}, ErrClosed
	}
	if !c.online {
		return ResyncReport{}, ErrOffline
	}

	var (
		report ResyncReport
		err    error
	)
	if incremental {
		report, err = c.sync.IncrementalResync(ctx)
	} else {
		report, err = c.sync.FullResync(ctx, time.Time{})
	}
	if err != nil {
		c.logger.Warn("cache refresh failed",
			zap.Bool("incremental", incremental),
			zap.Int("pages", report.Pages),
			zap.Error(err),
		)
		return report, err
	}
	return report, nil
}

// Stats returns a snapshot of the cache contents.
func (c *Client) Stats() Stats {
	s := c.engine.Stats()
	return Stats{
		Size:          s.Size,
		UniqueCodes:   s.UniqueCodes,
		TokenCount:    s.TokenCount,
		Initialized:   s.Initialized,
		LastPersisted: c.engine.LastPersisted(),
		LastResync:    c.engine.LastResync(),
		Stale:         c.sync.IsStale(),
	}
}

// Flush waits until pending persistence is written.
func (c *Client) Flush(ctx context.Context) error {
	return c.engine.Flush(ctx)
}

// Clear empties the cache and removes its persisted copy.
func (c *Client) Clear(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.sync.ClearResults()
	if err := c.engine.Clear(ctx); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

// Close stops search sessions, flushes pending persistence and closes the
// store. After Close, the client should not be used.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	var errs []error
	if err := c.sync.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing sync controller: %w", err))
	}
	if err := c.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing cache: %w", err))
	}
	return errors.Join(errs...)
}
