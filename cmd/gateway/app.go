package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"claude_gateway/internal/catalog"
	"claude_gateway/internal/config"
	"claude_gateway/internal/httpapi"
	"claude_gateway/internal/metering"
	"claude_gateway/internal/models"
	"claude_gateway/internal/providers"
	"claude_gateway/internal/queue"
	"claude_gateway/internal/rewrite"
	"claude_gateway/internal/storage"
	"claude_gateway/internal/utils"
)

// app owns every long-lived component of a running gateway.
type app struct {
	db         *storage.DB
	redis      *redis.Client
	usageQueue queue.Queue[*models.UsageEvent]
	deadLetter queue.DeadLetterQueue[*models.UsageEvent]
	worker     *storage.UsageQueueWorker
	dispatcher *providers.ClaudeClient
	catalog    *catalog.Catalog
	handler    http.Handler

	cacheTTL time.Duration
	logger   *utils.Logger
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cacheTTL: cfg.Cache.ModelCacheTTL,
		logger:   utils.NewLogger("gateway"),
	}

	dbCfg, err := storage.DBConfigFrom(cfg.Database, cfg.Cache)
	if err != nil {
		return nil, err
	}
	if a.db, err = storage.NewDB(dbCfg); err != nil {
		return nil, err
	}
	if err := a.db.Migrate(ctx); err != nil {
		a.db.Close()
		return nil, err
	}

	queueCfg := &queue.Config{
		Name:         cfg.UsageQueue.Name,
		BatchSize:    cfg.UsageQueue.BatchSize,
		BatchTimeout: cfg.UsageQueue.BatchTimeout,
		MaxRetries:   cfg.UsageQueue.MaxRetries,
		RetryBackoff: cfg.UsageQueue.RetryBackoff,
	}
	if err := a.openQueues(ctx, cfg, queueCfg); err != nil {
		a.db.Close()
		return nil, err
	}

	metrics := a.db.NewMetricRepository()
	a.worker = storage.NewUsageQueueWorker(a.usageQueue, a.deadLetter, metrics, queueCfg)

	a.dispatcher = providers.NewClaudeClient(cfg.Claude.RequestTimeout)
	endpoints := catalog.NewEndpointSet(cfg.Claude.Enabled, cfg.Claude.BaseURLs, cfg.Claude.APIKeys)
	endpoints.Reconcile()
	a.catalog = catalog.New(endpoints, a.dispatcher, cfg.Claude.FetchTimeout)

	prompts := a.db.NewPromptRepository()
	policies := a.db.NewModelRepository()

	a.handler = httpapi.NewRouter(&httpapi.Dependencies{
		JWTSecret:     cfg.JWTSecret,
		ModelFilter:   cfg.ModelFilter,
		Catalog:       a.catalog,
		Rewriter:      rewrite.New(prompts, prompts, policies, a.catalog),
		Dispatcher:    a.dispatcher,
		Meter:         metering.NewMeter(metering.NewQueuePublisher(a.usageQueue, 0)),
		Metrics:       metrics,
		ModelPolicies: policies,
		UsageQueue:    a.worker,
		Health:        a.db.Health,
	})
	return a, nil
}

// openQueues creates the usage queue and its dead letter queue on the
// configured backend.
func (a *app) openQueues(ctx context.Context, cfg *config.Config, queueCfg *queue.Config) error {
	switch cfg.UsageQueue.Backend {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.redis.Close()
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.usageQueue = queue.NewRedisQueue[*models.UsageEvent](a.redis, queueCfg)
		a.deadLetter = queue.NewRedisDeadLetterQueue[*models.UsageEvent](a.redis, queueCfg)
	default:
		a.usageQueue = queue.NewMemoryQueue[*models.UsageEvent](queueCfg)
		a.deadLetter = queue.NewMemoryDeadLetterQueue[*models.UsageEvent]()
	}
	return nil
}

// start launches the usage worker, warms the catalog and evicts expired
// model policies until ctx is done.
func (a *app) start(ctx context.Context) {
	a.worker.Start(ctx)

	if snap := a.catalog.Refresh(ctx); snap.Len() > 0 {
		a.logger.Info("Catalog ready", "models", snap.Len())
	}

	if a.cacheTTL > 0 {
		go func() {
			ticker := time.NewTicker(a.cacheTTL)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := a.db.CleanupExpiredCacheEntries(); n > 0 {
						a.logger.Debug("Evicted expired model policies", "count", n)
					}
				}
			}
		}()
	}
}

// close stops the worker, applies whatever is still queued and releases
// every connection.
func (a *app) close(ctx context.Context) error {
	var errs []error

	if err := a.worker.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := a.worker.Drain(ctx); err != nil {
		errs = append(errs, err)
	}
	stats := a.worker.Stats()
	a.logger.Info("Usage worker stopped", "applied", stats.Applied, "dead_lettered", stats.DeadLettered)

	if err := a.usageQueue.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close usage queue: %w", err))
	}
	if err := a.deadLetter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close dead letter queue: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := a.dispatcher.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
