package commands

import (
	"context"
	"fmt"

	"github.com/wonny/optionsdash/internal/adapter"
	"github.com/wonny/optionsdash/internal/collector"
	"github.com/wonny/optionsdash/internal/external/schwab"
	"github.com/wonny/optionsdash/internal/historical"
	"github.com/wonny/optionsdash/internal/quality"
	"github.com/wonny/optionsdash/internal/router"
	"github.com/wonny/optionsdash/internal/snapshot"
	"github.com/wonny/optionsdash/pkg/config"
	"github.com/wonny/optionsdash/pkg/database"
	"github.com/wonny/optionsdash/pkg/httputil"
	"github.com/wonny/optionsdash/pkg/logger"
	"github.com/wonny/optionsdash/pkg/redis"
)

// app holds the wired components shared by every command
type app struct {
	cfg *config.Config
	log *logger.Logger

	db    *database.DB
	redis *redis.Client

	backend   snapshot.ReadWriter
	store     *snapshot.CachedStore
	live      *schwab.Client
	analyzer  *historical.Analyzer
	router    *router.Router
	adapter   *adapter.Adapter
	collector *collector.Collector
}

// newApp loads config and wires storage, live fetch, routing and collection
func newApp(ctx context.Context) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)
	a := &app{cfg: cfg, log: log}

	// 3. Snapshot backend
	switch cfg.Snapshot.Backend {
	case "postgres":
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.db = db

		pg := snapshot.NewPostgresStore(db.Pool, log)
		if err := pg.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure snapshot schema: %w", err)
		}
		a.backend = pg
	default:
		a.backend = snapshot.NewFileStore(cfg.Snapshot.Dir, log)
	}

	// 4. Redis (optional L2 cache + shared rate limit)
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without shared cache")
		rc = redis.Disabled()
	}
	a.redis = rc

	a.store = snapshot.NewCachedStore(a.backend, cfg.Snapshot.CacheTTL, log,
		snapshot.WithRedis(redis.NewCache(rc, "optionsdash")))

	// 5. Live brokerage client
	httpClient := httputil.New(cfg.Schwab.Timeout, log).
		WithRateLimiter(redis.NewRateLimiter(rc, "optionsdash"), redis.SchwabRateLimit)
	if cfg.Schwab.AccessToken == "" {
		log.Warn("SCHWAB_ACCESS_TOKEN not set, live chains will be unavailable")
	}
	a.live = schwab.NewClient(httpClient, cfg.Schwab, log)

	// 6. Analysis and routing
	a.analyzer = historical.New(a.store, historical.ConfigFrom(cfg.Quality), log)
	assessor := quality.New(quality.ConfigFrom(cfg.Quality))
	a.router = router.New(a.live, a.store, a.analyzer, assessor, router.ConfigFrom(cfg.Router), log)
	a.adapter = adapter.New(a.router, log)

	// 7. Collection writes through the cache so range entries are invalidated
	a.collector = collector.New(a.live, a.store, collector.ConfigFrom(cfg.Collector), log)

	return a, nil
}

// Close releases pooled connections
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close redis")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
