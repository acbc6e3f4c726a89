package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blogpulse/internal/cache"
	"github.com/blogpulse/internal/db"
	"github.com/blogpulse/internal/observability"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultQueryLimit = 10
	maxQueryLimit     = 100
	dateLayout        = "2006-01-02"
)

// SiteStats 汇总全站 PV/UV，基于 post_stats 即时计算。
type SiteStats struct {
	TotalViews     int64 `json:"totalViews"`
	TotalPosts     int64 `json:"totalPosts"`
	UniqueVisitors int64 `json:"uniqueVisitors"`
}

// PopularPost 描述热门文章的统计信息。
type PopularPost struct {
	ContentID      string `json:"contentId"`
	ViewCount      int64  `json:"viewCount"`
	UniqueVisitors int64  `json:"uniqueVisitors"`
}

// DailyViews 是按 UTC 日期聚合的单日访问量。
type DailyViews struct {
	Date           string `json:"date"`
	Count          int64  `json:"count"`
	UniqueVisitors int64  `json:"uniqueVisitors"`
}

// RefererStat 是单个来源的访问次数。
type RefererStat struct {
	Referer string `json:"referer"`
	Count   int64  `gorm:"column:total" json:"count"`
}

// OverviewStats 在 SiteStats 基础上附加今日与近 7 日数据。
type OverviewStats struct {
	SiteStats
	TodayViews          int64 `json:"todayViews"`
	WeekViews           int64 `json:"weekViews"`
	TodayUniqueVisitors int64 `json:"todayUniqueVisitors"`
	WeekUniqueVisitors  int64 `json:"weekUniqueVisitors"`
}

// Overview 是后台仪表盘一次性需要的全部数据。
type Overview struct {
	Stats        OverviewStats `json:"stats"`
	PopularPosts []PopularPost `json:"popularPosts"`
	RecentViews  []db.PageView `json:"recentViews"`
	ChartData    []DailyViews  `json:"chartData"`
	RefererStats []RefererStat `json:"refererStats"`
}

// QueryCaches 为可缓存的只读查询提供存储，字段为 nil 时直接查库。
type QueryCaches struct {
	Site     cache.Store[SiteStats]
	Popular  cache.Store[[]PopularPost]
	Referers cache.Store[[]RefererStat]
}

// NewMemoryQueryCaches 创建进程内缓存。
func NewMemoryQueryCaches(size int, ttl time.Duration) QueryCaches {
	return QueryCaches{
		Site:     cache.NewMemory[SiteStats](size, ttl),
		Popular:  cache.NewMemory[[]PopularPost](size, ttl),
		Referers: cache.NewMemory[[]RefererStat](size, ttl),
	}
}

// NewRedisQueryCaches 创建多实例共享的 Redis 缓存。
func NewRedisQueryCaches(client *redis.Client, ttl time.Duration) QueryCaches {
	return QueryCaches{
		Site:     cache.NewRedis[SiteStats](client, "blogpulse:query:site:", ttl),
		Popular:  cache.NewRedis[[]PopularPost](client, "blogpulse:query:popular:", ttl),
		Referers: cache.NewRedis[[]RefererStat](client, "blogpulse:query:referers:", ttl),
	}
}

// QueryService 组合 post_stats 与 page_views，为仪表盘提供只读查询。
type QueryService struct {
	db      *gorm.DB
	catalog ContentCatalog
	caches  QueryCaches
	log     *zap.Logger
	metrics *observability.Metrics
}

// NewQueryService 创建查询服务，默认不缓存、不过滤。
func NewQueryService(gdb *gorm.DB) *QueryService {
	return &QueryService{db: gdb, log: zap.NewNop()}
}

// WithCatalog 设置内容目录，热门文章只保留仍在发布中的内容。
func (s *QueryService) WithCatalog(c ContentCatalog) *QueryService {
	s.catalog = c
	return s
}

// WithCaches 设置查询缓存。
func (s *QueryService) WithCaches(c QueryCaches) *QueryService {
	s.caches = c
	return s
}

// WithLogger 设置日志实例。
func (s *QueryService) WithLogger(log *zap.Logger) *QueryService {
	if log != nil {
		s.log = log
	}
	return s
}

// WithMetrics 设置指标收集器。
func (s *QueryService) WithMetrics(m *observability.Metrics) *QueryService {
	s.metrics = m
	return s
}

// Invalidate 清空查询缓存，聚合完成后调用。
func (s *QueryService) Invalidate(ctx context.Context) {
	if s.caches.Site != nil {
		s.caches.Site.Purge(ctx)
	}
	if s.caches.Popular != nil {
		s.caches.Popular.Purge(ctx)
	}
	if s.caches.Referers != nil {
		s.caches.Referers.Purge(ctx)
	}
}

func cached[T any](ctx context.Context, store cache.Store[T], key string, m *observability.Metrics, load func() (T, error)) (T, error) {
	if store == nil {
		return load()
	}
	if value, ok := store.Get(ctx, key); ok {
		m.RecordCacheLookup(true)
		return value, nil
	}
	m.RecordCacheLookup(false)

	value, err := load()
	if err != nil {
		return value, err
	}
	store.Set(ctx, key, value)
	return value, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// SiteStats 汇总全部 post_stats 行。
func (s *QueryService) SiteStats(ctx context.Context) (SiteStats, error) {
	return cached(ctx, s.caches.Site, "site", s.metrics, func() (SiteStats, error) {
		var stats SiteStats
		if err := s.db.WithContext(ctx).
			Model(&db.PostStat{}).
			Select("COALESCE(SUM(view_count), 0) AS total_views, COUNT(*) AS total_posts, COALESCE(SUM(unique_visitors), 0) AS unique_visitors").
			Scan(&stats).Error; err != nil {
			return SiteStats{}, storageUnavailable("site stats", err)
		}
		return stats, nil
	})
}

// PopularPosts 按浏览量倒序返回文章，浏览量相同时按 contentId 升序。
func (s *QueryService) PopularPosts(ctx context.Context, limit int) ([]PopularPost, error) {
	limit = normalizeLimit(limit)
	key := fmt.Sprintf("%d", limit)

	return cached(ctx, s.caches.Popular, key, s.metrics, func() ([]PopularPost, error) {
		query := s.db.WithContext(ctx).
			Model(&db.PostStat{}).
			Select("content_id, view_count, unique_visitors").
			Order("view_count DESC").
			Order("content_id ASC").
			Limit(limit)

		if s.catalog != nil {
			published, err := s.catalog.ListPublishedContentIDs(ctx)
			switch {
			case errors.Is(err, ErrCatalogEmpty):
				s.log.Debug("content catalog is empty, skipping published filter")
			case err != nil:
				s.log.Warn("content catalog unavailable, skipping published filter", zap.Error(err))
			default:
				if len(published) == 0 {
					return []PopularPost{}, nil
				}
				ids := make([]string, 0, len(published))
				for id := range published {
					ids = append(ids, id)
				}
				query = query.Where("content_id IN ?", ids)
			}
		}

		posts := []PopularPost{}
		if err := query.Scan(&posts).Error; err != nil {
			return nil, storageUnavailable("popular posts", err)
		}
		return posts, nil
	})
}

// PostStats 返回单篇文章的汇总，尚未聚合时返回零值。
func (s *QueryService) PostStats(ctx context.Context, contentID string) (db.PostStat, error) {
	stat := db.PostStat{ContentID: contentID}
	result := s.db.WithContext(ctx).
		Where("content_id = ?", contentID).
		Limit(1).
		Find(&stat)
	if result.Error != nil {
		return db.PostStat{ContentID: contentID}, storageUnavailable("post stats", result.Error)
	}
	return stat, nil
}

// ViewsByDateRange 直接基于事件表按 UTC 日期统计 [start, end] 内的访问量。
func (s *QueryService) ViewsByDateRange(ctx context.Context, start, end time.Time) ([]DailyViews, error) {
	series := []DailyViews{}
	if end.Before(start) {
		return series, nil
	}

	day := utcDateExpr(s.db.Dialector.Name())
	if err := s.db.WithContext(ctx).
		Model(&db.PageView{}).
		Select(day+" AS date, COUNT(*) AS count, COUNT(DISTINCT visitor_id) AS unique_visitors").
		Where("timestamp >= ? AND timestamp <= ?", start.UTC(), end.UTC()).
		Group(day).
		Order(day + " ASC").
		Scan(&series).Error; err != nil {
		return []DailyViews{}, storageUnavailable("views by date range", err)
	}
	return series, nil
}

// utcDateExpr 返回把 timestamp 列截断为 UTC 日期 (YYYY-MM-DD) 的 SQL 表达式。
func utcDateExpr(dialect string) string {
	if dialect == "postgres" {
		return `to_char("timestamp" AT TIME ZONE 'UTC', 'YYYY-MM-DD')`
	}
	return `date("timestamp")`
}

// UniqueVisitorsByDateRange 统计 [start, end] 内的独立访客数。
func (s *QueryService) UniqueVisitorsByDateRange(ctx context.Context, start, end time.Time) (int64, error) {
	if end.Before(start) {
		return 0, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&db.PageView{}).
		Where("timestamp >= ? AND timestamp <= ?", start.UTC(), end.UTC()).
		Distinct("visitor_id").
		Count(&count).Error; err != nil {
		return 0, storageUnavailable("unique visitors by date range", err)
	}
	return count, nil
}

// RefererStats 按次数倒序返回来源，空来源不计入。
func (s *QueryService) RefererStats(ctx context.Context, limit int) ([]RefererStat, error) {
	limit = normalizeLimit(limit)
	key := fmt.Sprintf("%d", limit)

	return cached(ctx, s.caches.Referers, key, s.metrics, func() ([]RefererStat, error) {
		stats := []RefererStat{}
		if err := s.db.WithContext(ctx).
			Model(&db.PageView{}).
			Select("referer, COUNT(*) AS total").
			Where("referer IS NOT NULL AND referer <> ''").
			Group("referer").
			Order("total DESC").
			Order("referer ASC").
			Limit(limit).
			Scan(&stats).Error; err != nil {
			return nil, storageUnavailable("referer stats", err)
		}
		return stats, nil
	})
}

// RecentEvents 返回最新的原始事件，不做聚合。
func (s *QueryService) RecentEvents(ctx context.Context, limit int) ([]db.PageView, error) {
	events := []db.PageView{}
	if err := s.db.WithContext(ctx).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(normalizeLimit(limit)).
		Find(&events).Error; err != nil {
		return events, storageUnavailable("recent events", err)
	}
	return events, nil
}

// Overview 汇总后台仪表盘数据。单项查询失败只记录日志并返回零值，保证页面可渲染。
func (s *QueryService) Overview(ctx context.Context, now time.Time) Overview {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	last7Days := today.AddDate(0, 0, -7)
	last30Days := today.AddDate(0, 0, -30)

	overview := Overview{
		PopularPosts: []PopularPost{},
		RecentViews:  []db.PageView{},
		ChartData:    []DailyViews{},
		RefererStats: []RefererStat{},
	}

	var g errgroup.Group
	g.Go(func() error {
		stats, err := s.SiteStats(ctx)
		s.logQueryError("site stats", err)
		overview.Stats.SiteStats = stats
		return nil
	})
	g.Go(func() error {
		if posts, err := s.PopularPosts(ctx, 20); err == nil {
			overview.PopularPosts = posts
		} else {
			s.logQueryError("popular posts", err)
		}
		return nil
	})
	g.Go(func() error {
		if events, err := s.RecentEvents(ctx, 20); err == nil {
			overview.RecentViews = events
		} else {
			s.logQueryError("recent events", err)
		}
		return nil
	})
	g.Go(func() error {
		if series, err := s.ViewsByDateRange(ctx, last30Days, now); err == nil {
			overview.ChartData = series
		} else {
			s.logQueryError("views by date range", err)
		}
		return nil
	})
	g.Go(func() error {
		if referers, err := s.RefererStats(ctx, 10); err == nil {
			overview.RefererStats = referers
		} else {
			s.logQueryError("referer stats", err)
		}
		return nil
	})
	g.Go(func() error {
		count, err := s.UniqueVisitorsByDateRange(ctx, today, now)
		s.logQueryError("today unique visitors", err)
		overview.Stats.TodayUniqueVisitors = count
		return nil
	})
	g.Go(func() error {
		count, err := s.UniqueVisitorsByDateRange(ctx, last7Days, now)
		s.logQueryError("week unique visitors", err)
		overview.Stats.WeekUniqueVisitors = count
		return nil
	})
	_ = g.Wait()

	todayKey := today.Format(dateLayout)
	weekKey := last7Days.Format(dateLayout)
	for _, day := range overview.ChartData {
		if day.Date >= weekKey {
			overview.Stats.WeekViews += day.Count
		}
		if day.Date == todayKey {
			overview.Stats.TodayViews += day.Count
		}
	}

	return overview
}

func (s *QueryService) logQueryError(name string, err error) {
	if err != nil {
		s.log.Warn("dashboard query failed", zap.String("query", name), zap.Error(err))
	}
}
