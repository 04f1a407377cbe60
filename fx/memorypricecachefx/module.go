// Package memorypricecachefx provides an fx module for an in-memory pricecache client.
// Useful for testing.
package memorypricecachefx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/pricecache"
	"github.com/discochess/pricecache/internal/stats"
	"github.com/discochess/pricecache/internal/stats/logger"
	"github.com/discochess/pricecache/internal/store/memstore"
)

// Module provides an offline in-memory pricecache client for testing.
// Requires a *zap.Logger to be provided.
var Module = fx.Module("memorypricecache",
	fx.Provide(
		newStatsCollector,
		newMemStore,
		newClient,
	),
)

func newStatsCollector(log *zap.Logger) stats.Collector {
	return logger.New(log.Named("pricecache.stats"))
}

func newMemStore() *memstore.Store {
	return memstore.New()
}

// Params holds dependencies for creating the client.
type Params struct {
	fx.In

	Logger    *zap.Logger
	Collector stats.Collector
	Store     *memstore.Store
	Lifecycle fx.Lifecycle
}

// Result holds the provided client and store.
type Result struct {
	fx.Out

	Client *pricecache.Client
	Store  *memstore.Store // Exposed for test setup
}

func newClient(p Params) (Result, error) {
	client, err := pricecache.New(
		pricecache.WithStore(p.Store),
		pricecache.WithStats(p.Collector),
		pricecache.WithLogger(p.Logger),
	)
	if err != nil {
		return Result{}, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Initialize(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return Result{
		Client: client,
		Store:  p.Store,
	}, nil
}
