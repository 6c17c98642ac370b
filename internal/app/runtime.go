// Package app wires configuration into a ready builder: cache backend,
// upstream clients and enrichment options.
package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"mlb_daily/ingestion/internal/builder"
	"mlb_daily/ingestion/internal/cache"
	"mlb_daily/ingestion/internal/client"
	"mlb_daily/ingestion/internal/config"
	"mlb_daily/ingestion/internal/enrich"
	"mlb_daily/ingestion/internal/repository"
	"mlb_daily/ingestion/internal/server"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Runtime is everything a command needs to run builds
type Runtime struct {
	Builder *builder.Builder
	Store   *cache.Store
	// Backend is the cache backend actually in use (after any fallback)
	Backend string
	// Checks are the dependencies reported by the worker's /health
	Checks map[string]server.Pinger
	// Purger is set for the postgres backend
	Purger *repository.CacheEntryRepository

	closers []func()
}

// Close releases connections opened by New
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// New builds a Runtime from cfg. An unreachable redis or postgres backend
// degrades to the filesystem cache so a run is never blocked on it.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{Checks: make(map[string]server.Pinger)}

	backend, err := rt.openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Str("backend", cfg.CacheBackend).Msg("Cache backend unavailable - falling back to filesystem")
		backend, err = cache.NewFSBackend(cfg.CacheDir)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open cache directory: %w", err)
		}
		rt.Backend = config.BackendFS
	}

	rt.Store = cache.NewStore(backend,
		cache.WithTTLs(cfg.TTLOverrides()),
		cache.WithForceRefresh(cfg.ForceRefresh),
		cache.WithLogger(logger),
	)

	policy := client.Policy{
		Timeout:     cfg.HTTPTimeout(),
		Retries:     cfg.HTTPRetries,
		BackoffBase: cfg.HTTPBackoffBase(),
		Concurrency: cfg.Concurrency,
	}
	limiter := client.NewLimiter(cfg.Concurrency)
	stats := client.NewStatsAPI(cfg.StatsAPIBaseURL, policy,
		client.SplitCodes{Left: cfg.SplitCodeLeft, Right: cfg.SplitCodeRight},
		client.WithLimiter(limiter), client.WithLogger(logger))
	statcast := client.NewStatcast(cfg.StatcastBaseURL, policy,
		client.WithLimiter(limiter), client.WithLogger(logger))

	enrichOpts := enrich.DefaultOptions()
	enrichOpts.StatcastWindowDays = cfg.StatcastWindowDays
	enrichOpts.CloserPolicy = cfg.CloserPolicy

	rt.Builder = builder.New(stats, statcast, rt.Store, builder.Options{
		OutputDir:       cfg.OutputDir,
		Concurrency:     cfg.Concurrency,
		Deadline:        cfg.RunDeadline,
		LeagueZone:      cfg.LeagueTimezone,
		CutoffHour:      cfg.CutoffHour,
		Season:          cfg.Season,
		Enrich:          enrichOpts,
		StatsAPIBaseURL: stats.BaseURL(),
		StatcastBaseURL: statcast.BaseURL(),
	}, logger)

	logger.Info().
		Str("cache_backend", rt.Backend).
		Str("output_dir", cfg.OutputDir).
		Int("concurrency", cfg.Concurrency).
		Msg("Runtime initialized")

	return rt, nil
}

func (rt *Runtime) openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Backend, error) {
	rt.Backend = cfg.CacheBackend

	switch cfg.CacheBackend {
	case config.BackendRedis:
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rb := cache.NewRedisBackend(rc)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rb.Ping(pingCtx); err != nil {
			_ = rc.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = rc.Close() })
		rt.Checks["redis"] = server.PingFunc(rb.Ping)
		logger.Info().Str("addr", cfg.RedisAddr()).Msg("Redis cache connected")
		return rb, nil

	case config.BackendPostgres:
		db, err := repository.NewDatabase(ctx, repository.Config{
			Host:     cfg.DatabaseHost,
			Port:     strconv.Itoa(cfg.DatabasePort),
			User:     cfg.DatabaseUser,
			Password: cfg.DatabasePassword,
			Database: cfg.DatabaseName,
			SSLMode:  cfg.DatabaseSSLMode,
		})
		if err != nil {
			return nil, err
		}
		if err := db.CacheEntries.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		rt.Checks["postgres"] = server.PingFunc(func(ctx context.Context) error {
			db.PoolStats()
			return db.Health(ctx)
		})
		rt.Purger = db.CacheEntries
		return db.CacheEntries, nil

	default:
		return cache.NewFSBackend(cfg.CacheDir)
	}
}
