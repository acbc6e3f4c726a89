package main

import (
	"github.com/blogpulse/internal/config"
	"github.com/blogpulse/internal/observability"
	"github.com/blogpulse/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// newQueryService 按配置组装查询服务，只有 CONTENT_CATALOG=posts 时才按发布状态过滤。
func newQueryService(cfg config.AppConfig, gdb *gorm.DB, caches service.QueryCaches, logger *zap.Logger, metrics *observability.Metrics) *service.QueryService {
	queries := service.NewQueryService(gdb).
		WithCaches(caches).
		WithLogger(logger.Named("query")).
		WithMetrics(metrics)
	if cfg.ContentCatalog == config.ContentCatalogPosts {
		queries.WithCatalog(service.NewPostCatalog(gdb))
	}
	return queries
}
