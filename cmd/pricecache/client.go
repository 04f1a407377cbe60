package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/discochess/pricecache"
	"github.com/discochess/pricecache/internal/config"
	"github.com/discochess/pricecache/internal/stats"
	promstats "github.com/discochess/pricecache/internal/stats/prometheus"
)

// session bundles what a command needs to talk to the cache.
type session struct {
	client   *pricecache.Client
	logger   *zap.Logger
	registry *prometheus.Registry
}

// openSession builds a client from cfg. With online set the client also
// talks to the API; it is an error if none is configured.
func openSession(ctx context.Context, online bool) (*session, error) {
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	var collector stats.Collector = promstats.New(registry)

	st, err := cfg.OpenStore(ctx, collector)
	if err != nil {
		return nil, err
	}

	strategy, err := cfg.NewShardStrategy()
	if err != nil {
		st.Close()
		return nil, err
	}

	opts := []pricecache.Option{
		pricecache.WithStore(st),
		pricecache.WithShards(cfg.Shards),
		pricecache.WithShardStrategy(strategy),
		pricecache.WithDebounce(cfg.HitDebounce, cfg.MissDebounce),
		pricecache.WithStalenessWindow(cfg.StalenessWindow),
		pricecache.WithPageSize(cfg.PageSize),
		pricecache.WithResyncRate(cfg.ResyncRate),
		pricecache.WithAutoRefresh(false),
		pricecache.WithStats(collector),
		pricecache.WithLogger(logger),
	}

	if online {
		api, err := cfg.NewAPI(logger)
		if errors.Is(err, config.ErrNoAPI) {
			st.Close()
			return nil, fmt.Errorf("no API URL: set --api-url or %sAPI_URL", config.EnvPrefix)
		}
		if err != nil {
			st.Close()
			return nil, err
		}
		opts = append(opts, pricecache.WithAPI(api))
	}

	client, err := pricecache.New(opts...)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating client: %w", err)
	}
	if err := client.Initialize(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return &session{client: client, logger: logger, registry: registry}, nil
}

func (s *session) Close() error {
	defer s.logger.Sync()
	return s.client.Close()
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
