// Package app wires together configuration, the API client, the query cache
// and its persistence backend into a single Deps struct that commands
// receive at runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/derickschaefer/coinwatch/internal/coingecko"
	"github.com/derickschaefer/coinwatch/internal/config"
	"github.com/derickschaefer/coinwatch/internal/query"
	"github.com/derickschaefer/coinwatch/internal/rediscache"
	"github.com/derickschaefer/coinwatch/internal/store"
	"github.com/derickschaefer/coinwatch/internal/util"
)

// Deps holds all runtime dependencies injected into command Run functions.
// At most one of Store and Redis is set.
type Deps struct {
	Config *config.Config
	Logger *slog.Logger
	Client *coingecko.Client
	Cache  *query.Cache
	Market *query.Market
	Store  *store.Store
	Redis  *rediscache.Cache
}

// New builds a Deps from resolved config. A persistence backend that cannot
// be opened is logged and skipped; the cache then lives in memory only.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) *Deps {
	if log == nil {
		log = slog.Default()
	}
	d := &Deps{Config: cfg, Logger: log}

	d.Client = coingecko.NewClient(coingecko.Options{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
		Rate:    cfg.Rate,
		Logger:  log,
	})

	var persister query.Persister
	backend := cfg.CacheBackend
	if cfg.NoCache {
		backend = config.BackendNone
	}
	switch backend {
	case config.BackendBolt:
		s, err := store.Open(cfg.DBPath)
		if err != nil {
			log.Warn("persistent cache disabled", "backend", backend, "err", err)
			break
		}
		d.Store, persister = s, s
	case config.BackendRedis:
		r, err := rediscache.New(ctx, rediscache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RedisTTL,
		})
		if err != nil {
			log.Warn("persistent cache disabled", "backend", backend, "err", err)
			break
		}
		d.Redis, persister = r, r
	}

	d.Cache = query.New(query.Options{Persister: persister, Logger: log})
	d.Market = query.NewMarket(d.Client, d.Cache)
	log.Debug("deps ready", "backend", backend, "persistent", persister != nil, "api_key", cfg.RedactedAPIKey())
	return d
}

// RequireStore returns the bbolt store or an error explaining why it is
// unavailable.
func (d *Deps) RequireStore() (*store.Store, error) {
	if d.Store != nil {
		return d.Store, nil
	}
	if d.Config.CacheBackend != config.BackendBolt {
		return nil, fmt.Errorf("cache_backend is %q; this command needs the bolt store", d.Config.CacheBackend)
	}
	return nil, errors.New("bolt store unavailable (is another coinwatch process holding " + d.Config.DBPath + "?)")
}

// Get reads through the cache, forcing a fetch when --refresh was given.
func Get[T any](ctx context.Context, d *Deps, q *query.Query[T]) query.View[T] {
	if d.Config.Refresh {
		return q.Refetch(ctx)
	}
	return q.Get(ctx)
}

// Close releases the persistence backend.
func (d *Deps) Close() error {
	var errs util.MultiError
	if d.Store != nil {
		errs.Add(d.Store.Close())
	}
	if d.Redis != nil {
		errs.Add(d.Redis.Close())
	}
	return errs.Err()
}
