package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/blogpulse/internal/cache"
	"github.com/blogpulse/internal/config"
	"github.com/blogpulse/internal/db"
	"github.com/blogpulse/internal/observability"
	"github.com/blogpulse/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	schedule = flag.String("schedule", "", "Cron schedule for aggregation runs (default: AGGREGATE_SCHEDULE or every 15 minutes)")
	runOnce  = flag.Bool("run-once", false, "Run aggregation once and exit")
)

func main() {
	flag.Parse()
	cfg := config.Load()
	if *schedule == "" {
		*schedule = cfg.AggregateSchedule
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.InitTracing(ctx, logger, observability.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: "blogpulse-aggregator",
	})
	defer shutdownTracing(context.Background())

	if err := db.Init(db.Options{Driver: cfg.DatabaseDriver, Path: cfg.DatabasePath, URL: cfg.DatabaseURL}); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	aggregator := service.NewAggregationService(db.DB).
		WithWorkers(cfg.AggregateWorkers).
		WithLogger(logger.Named("aggregate")).
		WithMetrics(observability.NewMetrics())

	// 服务端开启 Redis 缓存时，聚合完成后清空共享缓存。
	var queries *service.QueryService
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, shared query cache will expire by ttl", zap.Error(err))
		} else {
			defer client.Close()
			queries = service.NewQueryService(db.DB).WithCaches(service.NewRedisQueryCaches(client, cfg.QueryCacheTTL))
		}
	}

	run := func() error {
		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()

		summary, err := aggregator.Aggregate(runCtx, time.Now())
		if queries != nil && len(summary.Updated) > 0 {
			queries.Invalidate(runCtx)
		}
		return err
	}

	if *runOnce {
		if err := run(); err != nil {
			logger.Error("aggregation failed", zap.Error(err))
			if !errors.Is(err, service.ErrPartialAggregation) {
				logger.Sync()
				log.Fatalf("aggregation failed: %v", err)
			}
		}
		return
	}

	cronLog := observability.CronLogger(logger.Named("cron"))
	c := cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.SkipIfStillRunning(cronLog)))
	if _, err := c.AddFunc(*schedule, func() {
		if err := run(); err != nil {
			logger.Warn("scheduled aggregation finished with error", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("failed to schedule aggregation", zap.String("schedule", *schedule), zap.Error(err))
	}

	c.Start()
	logger.Info("aggregator started", zap.String("schedule", *schedule))

	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx := c.Stop()
	<-stopCtx.Done()
	logger.Info("aggregator stopped")
}
