package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/zhaoqi/breadth/internal/breadth"
	"github.com/zhaoqi/breadth/internal/external/tushare"
	"github.com/zhaoqi/breadth/internal/screen"
	"github.com/zhaoqi/breadth/internal/store"
	"github.com/zhaoqi/breadth/pkg/config"
	"github.com/zhaoqi/breadth/pkg/database"
	"github.com/zhaoqi/breadth/pkg/httputil"
	"github.com/zhaoqi/breadth/pkg/logger"
	"github.com/zhaoqi/breadth/pkg/redis"
)

// app holds the wired-up components every command starts from.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *database.DB
	rdb    *redis.Client
	prices *store.PriceRepository
	stats  *store.BreadthRepository
	status *store.StatusRepository

	controller *breadth.Controller
	screener   *screen.Screener
}

// newApp loads config, connects to Postgres (running migrations) and
// optionally Redis, and builds the provider client and both engines.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := store.Migrate(ctx, db.Pool); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	rdb, err := redis.New(cfg)
	if err != nil {
		// Redis only shares the provider rate limit across processes;
		// a single process runs fine on the local limiter.
		log.WithError(err).Warn("redis unavailable, using local rate limiting only")
		rdb = nil
	}

	httpClient := httputil.New(log, cfg.Tushare.Timeout)
	if rdb != nil && rdb.Enabled() {
		httpClient = httpClient.WithRateLimiter(redis.NewRateLimiter(rdb, "breadth"), redis.RateLimitConfig{
			Key:    "tushare",
			Limit:  cfg.Tushare.ReqPerMin,
			Window: time.Minute,
		})
	}

	provider := tushare.NewClient(cfg, httpClient, log)

	prices := store.NewPriceRepository(db.Pool)
	stats := store.NewBreadthRepository(db.Pool)
	status := store.NewStatusRepository(db.Pool)

	return &app{
		cfg:        cfg,
		log:        log,
		db:         db,
		rdb:        rdb,
		prices:     prices,
		stats:      stats,
		status:     status,
		controller: breadth.NewController(cfg, provider, prices, stats, status, log),
		screener:   screen.New(cfg, provider, prices, log),
	}, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	a.db.Close()
}
