package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blogpulse/internal/cache"
	"github.com/blogpulse/internal/config"
	"github.com/blogpulse/internal/db"
	"github.com/blogpulse/internal/handler"
	"github.com/blogpulse/internal/observability"
	"github.com/blogpulse/internal/router"
	"github.com/blogpulse/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

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
		ServiceName: "blogpulse-server",
	})

	// 初始化数据库
	if err := db.Init(db.Options{Driver: cfg.DatabaseDriver, Path: cfg.DatabasePath, URL: cfg.DatabaseURL}); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	if err := db.EnsureUser(db.DB, cfg.SuperRootUserName, cfg.SuperRootPassword); err != nil {
		logger.Fatal("failed to ensure super root user", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, using in-process cache and store dedup", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	analytics := service.NewAnalyticsService(db.DB).
		WithDedupWindow(cfg.DedupWindow).
		WithSessionWindow(cfg.SessionWindow).
		WithMinReadTime(cfg.MinReadTime).
		WithTimeout(cfg.IngestTimeout).
		WithHasher(service.NewSHA256Hasher(cfg.IPHashSalt)).
		WithLogger(logger.Named("ingest")).
		WithMetrics(metrics)
	if cfg.DedupMode == config.DedupModeRedis && redisClient != nil {
		analytics.WithGuard(service.NewRedisDedupGuard(
			redisClient,
			cfg.DedupWindow,
			service.NewStoreDedupGuard(db.DB, cfg.DedupWindow),
			logger.Named("dedup"),
		))
	}

	caches := service.NewMemoryQueryCaches(cfg.QueryCacheSize, cfg.QueryCacheTTL)
	if redisClient != nil {
		caches = service.NewRedisQueryCaches(redisClient, cfg.QueryCacheTTL)
	}
	queries := newQueryService(cfg, db.DB, caches, logger, metrics)

	aggregator := service.NewAggregationService(db.DB).
		WithWorkers(cfg.AggregateWorkers).
		WithLogger(logger.Named("aggregate")).
		WithMetrics(metrics)

	api := handler.NewAPI(db.DB, handler.Dependencies{
		Analytics:  analytics,
		Aggregator: aggregator,
		Queries:    queries,
		Auth:       service.NewAuthService(db.DB),
		Metrics:    metrics,
		Logger:     logger,
		CronSecret: cfg.CronSecret,
	})

	// 设置并运行 Gin 服务器
	gin.SetMode(cfg.GinMode)
	r := router.SetupRouter(api, cfg.SessionSecret, logger.Named("http"))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", zap.Error(err))
	}
}
