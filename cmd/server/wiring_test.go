package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/blogpulse/internal/config"
	"github.com/blogpulse/internal/db"
	"github.com/blogpulse/internal/observability"
	"github.com/blogpulse/internal/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupWiringTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:wiring-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		sqlDB.Close()
	})
	return gdb
}

func seedAggregatedViews(t *testing.T, gdb *gorm.DB) {
	t.Helper()

	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	analytics := service.NewAnalyticsService(gdb)
	for _, visitor := range []string{"a", "b", "c"} {
		if _, err := analytics.RecordView(ctx, service.ViewInput{ContentID: "hello", VisitorID: visitor}, now); err != nil {
			t.Fatalf("record view failed: %v", err)
		}
	}
	if _, err := service.NewAggregationService(gdb).Aggregate(ctx, now.Add(time.Minute)); err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
}

func TestQueryServiceWiringRanksWithoutCatalog(t *testing.T) {
	for _, mode := range []string{config.ContentCatalogNone, config.ContentCatalogPosts} {
		gdb := setupWiringTestDB(t)
		seedAggregatedViews(t, gdb)

		cfg := config.AppConfig{ContentCatalog: mode}
		queries := newQueryService(cfg, gdb, service.NewMemoryQueryCaches(16, time.Minute), zap.NewNop(), observability.NewMetrics())

		popular, err := queries.PopularPosts(context.Background(), 10)
		if err != nil {
			t.Fatalf("%s: popular posts failed: %v", mode, err)
		}
		if len(popular) != 1 || popular[0].ContentID != "hello" || popular[0].ViewCount != 3 {
			t.Fatalf("%s: expected hello ranked with an empty posts table, got %+v", mode, popular)
		}
	}
}

func TestQueryServiceWiringFiltersPopulatedCatalog(t *testing.T) {
	gdb := setupWiringTestDB(t)
	seedAggregatedViews(t, gdb)

	if err := gdb.Create(&db.Post{Slug: "hello", Title: "Hello", Status: db.PostStatusDraft}).Error; err != nil {
		t.Fatalf("failed to create post: %v", err)
	}

	cfg := config.AppConfig{ContentCatalog: config.ContentCatalogPosts}
	queries := newQueryService(cfg, gdb, service.QueryCaches{}, zap.NewNop(), nil)
	popular, err := queries.PopularPosts(context.Background(), 10)
	if err != nil {
		t.Fatalf("popular posts failed: %v", err)
	}
	if len(popular) != 0 {
		t.Fatalf("unpublished post should be filtered, got %+v", popular)
	}

	unfiltered := newQueryService(config.AppConfig{ContentCatalog: config.ContentCatalogNone}, gdb, service.QueryCaches{}, zap.NewNop(), nil)
	if popular, err := unfiltered.PopularPosts(context.Background(), 10); err != nil || len(popular) != 1 {
		t.Fatalf("catalog disabled should rank every post, got %+v (%v)", popular, err)
	}
}
