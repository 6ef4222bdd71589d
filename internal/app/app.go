// Package app assembles the quote pipeline from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"quoteexport/internal/config"
	"quoteexport/internal/httpx"
	"quoteexport/internal/provider"
	"quoteexport/internal/provider/batch"
	"quoteexport/internal/provider/cache"
	"quoteexport/internal/provider/hgbrasil"
	"quoteexport/internal/provider/ratelimit"
	"quoteexport/internal/store"
)

// App holds the wired components shared by the server and the CLI.
type App struct {
	Config   config.Config
	Logger   zerolog.Logger
	Store    *store.Store
	Fetcher  provider.Fetcher
	Resolver *cache.Resolver
	Batch    *batch.Orchestrator
}

// New opens the store, migrates it and builds the fetch/cache/batch stack.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	st, err := store.Open(ctx, cfg.Database.URL, store.PoolConfig{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	fetcher, err := NewFetcher(cfg.HGBrasil, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return assemble(cfg, logger, st, fetcher), nil
}

func assemble(cfg config.Config, logger zerolog.Logger, st *store.Store, fetcher provider.Fetcher) *App {
	resolver := cache.New(fetcher, st,
		cache.WithTTL(cfg.CacheTTL()),
		cache.WithFlightTimeout(cfg.RequestTimeout()),
		cache.WithLogger(logger))
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Fetcher:  fetcher,
		Resolver: resolver,
		Batch:    batch.New(resolver, cfg.Cache.BatchSize, logger),
	}
	logger.Info().
		Str("driver", st.Driver()).
		Str("fetcher", fetcher.Name()).
		Dur("ttl", cfg.CacheTTL()).
		Int("batch_size", cfg.Cache.BatchSize).
		Strs("categories", cfg.Categories()).
		Msg("quote pipeline ready")
	return a
}

// NewFetcher builds the upstream client, rate limited when configured.
// A per-minute budget takes precedence over a minimum interval.
func NewFetcher(cfg config.HGBrasil, logger zerolog.Logger) (provider.Fetcher, error) {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := httpx.New(timeout)

	opts := []hgbrasil.Option{hgbrasil.WithHTTPClient(hc), hgbrasil.WithLogger(logger)}
	if cfg.Endpoint != "" {
		opts = append(opts, hgbrasil.WithEndpoint(cfg.Endpoint))
	}
	client, err := hgbrasil.New(cfg.APIKey, opts...)
	if err != nil {
		return nil, err
	}

	var f provider.Fetcher = client
	switch {
	case cfg.MaxRequestsPerMinute > 0:
		f = &ratelimit.TokenBucketFetcher{F: f, TB: ratelimit.PerMinute(cfg.MaxRequestsPerMinute, cfg.Burst)}
	case cfg.MinRequestIntervalSec > 0:
		f = &ratelimit.MinInterval{F: f, Interval: cfg.MinInterval()}
	}
	return f, nil
}

func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
