// Package diskpricecachefx provides an fx module for a disk-backed pricecache client.
package diskpricecachefx

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/pricecache"
	"github.com/discochess/pricecache/internal/codec/zstdcodec"
	"github.com/discochess/pricecache/internal/config"
	"github.com/discochess/pricecache/internal/stats"
	"github.com/discochess/pricecache/internal/stats/logger"
	"github.com/discochess/pricecache/internal/store/cachedstore"
	"github.com/discochess/pricecache/internal/store/cachedstore/cachestrategy/lru"
	"github.com/discochess/pricecache/internal/store/cachedstore/memory"
	"github.com/discochess/pricecache/internal/store/diskstore"
)

// Config holds configuration for the disk-backed client.
type Config struct {
	// DataDir is the directory holding the persisted cache.
	DataDir string

	// APIURL is the pricing API base URL. Empty means offline.
	APIURL string

	// CacheSize is the number of persisted shards kept in memory.
	// Default is 32.
	CacheSize int

	// StalenessWindow is how long the persisted cache counts as fresh.
	// Zero means the client default.
	StalenessWindow time.Duration
}

// ConfigFromEnv reads Config from PRICECACHE_* environment variables.
func ConfigFromEnv() (Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return Config{}, err
	}
	return Config{
		DataDir:         cfg.DataDir,
		APIURL:          cfg.APIURL,
		CacheSize:       cfg.StoreCacheSize,
		StalenessWindow: cfg.StalenessWindow,
	}, nil
}

// Module provides a disk-backed pricecache client. The client is
// initialized on start and closed on stop.
// Requires a Config and a *zap.Logger to be provided.
var Module = fx.Module("diskpricecache",
	fx.Provide(
		newStatsCollector,
		newClient,
	),
)

func newStatsCollector(log *zap.Logger) stats.Collector {
	return logger.New(log.Named("pricecache.stats"))
}

// Params holds dependencies for creating the client.
type Params struct {
	fx.In

	Config    Config
	Logger    *zap.Logger
	Collector stats.Collector
	Lifecycle fx.Lifecycle
}

// Result holds the provided client.
type Result struct {
	fx.Out

	Client *pricecache.Client
}

func newClient(p Params) (Result, error) {
	cacheSize := p.Config.CacheSize
	if cacheSize <= 0 {
		cacheSize = 32
	}

	baseStore, err := diskstore.New(p.Config.DataDir, zstdcodec.New())
	if err != nil {
		return Result{}, err
	}

	lruStrategy, err := lru.New(cacheSize)
	if err != nil {
		return Result{}, err
	}

	st := cachedstore.New(baseStore, memory.New(lruStrategy, p.Collector))

	opts := []pricecache.Option{
		pricecache.WithStore(st),
		pricecache.WithStats(p.Collector),
		pricecache.WithLogger(p.Logger),
	}
	if p.Config.StalenessWindow > 0 {
		opts = append(opts, pricecache.WithStalenessWindow(p.Config.StalenessWindow))
	}
	if p.Config.APIURL != "" {
		api, err := pricecache.WithAPIURL(p.Config.APIURL)
		if err != nil {
			return Result{}, err
		}
		opts = append(opts, api)
	}

	client, err := pricecache.New(opts...)
	if err != nil {
		return Result{}, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// A failed refresh leaves a usable, stale cache.
			if err := client.Initialize(ctx); err != nil {
				p.Logger.Warn("pricecache started with a stale cache", zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return Result{Client: client}, nil
}
