package service

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/blogpulse/internal/db"
	"github.com/blogpulse/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultAggregateWorkers = 4

// FailedContent 记录单篇文章聚合失败的原因。
type FailedContent struct {
	ContentID string `json:"contentId"`
	Error     string `json:"error"`
}

// Summary 描述一次聚合运行的结果。
type Summary struct {
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Processed  int             `json:"processed"`
	Updated    []string        `json:"updated"`
	Failed     []FailedContent `json:"failed"`
}

// AggregationService 从事件表重新计算每篇文章的汇总并整行覆盖写入。
// 每次运行只依赖事件表，重复或并发运行都不会产生半写入的行。
type AggregationService struct {
	db      *gorm.DB
	workers int
	log     *zap.Logger
	metrics *observability.Metrics
}

// NewAggregationService 创建聚合服务。
func NewAggregationService(gdb *gorm.DB) *AggregationService {
	return &AggregationService{
		db:      gdb,
		workers: defaultAggregateWorkers,
		log:     zap.NewNop(),
	}
}

// WithWorkers 设置并发处理的文章数上限。
func (s *AggregationService) WithWorkers(n int) *AggregationService {
	if n > 0 {
		s.workers = n
	}
	return s
}

// WithLogger 设置日志实例。
func (s *AggregationService) WithLogger(log *zap.Logger) *AggregationService {
	if log != nil {
		s.log = log
	}
	return s
}

// WithMetrics 设置指标收集器。
func (s *AggregationService) WithMetrics(m *observability.Metrics) *AggregationService {
	s.metrics = m
	return s
}

type contentAggregate struct {
	ViewCount      int64
	UniqueVisitors int64
	AvgReadTime    sql.NullFloat64
}

// Aggregate 重新计算事件表中出现过的全部文章。
// 单篇失败不会中断整轮，失败列表通过 Summary 与 *PartialAggregationError 返回。
func (s *AggregationService) Aggregate(ctx context.Context, now time.Time) (Summary, error) {
	now = now.UTC()
	summary := Summary{StartedAt: now, Updated: []string{}, Failed: []FailedContent{}}

	ctx, span := tracer.Start(ctx, "analytics.Aggregate")
	defer span.End()

	var contentIDs []string
	if err := s.db.WithContext(ctx).
		Model(&db.PageView{}).
		Distinct("content_id").
		Order("content_id").
		Pluck("content_id", &contentIDs).Error; err != nil {
		span.RecordError(err)
		summary.FinishedAt = time.Now().UTC()
		s.metrics.RecordAggregation("failed", summary.FinishedAt.Sub(summary.StartedAt), 0)
		s.log.Error("failed to enumerate content ids", zap.Error(err))
		return summary, storageUnavailable("enumerate content ids", err)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.workers)

	for _, contentID := range contentIDs {
		contentID := contentID
		g.Go(func() error {
			err := s.aggregateOne(ctx, contentID, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn("failed to aggregate content",
					zap.String("contentId", contentID),
					zap.Error(err),
				)
				summary.Failed = append(summary.Failed, FailedContent{ContentID: contentID, Error: err.Error()})
				return nil
			}
			summary.Updated = append(summary.Updated, contentID)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(summary.Updated)
	sort.Slice(summary.Failed, func(i, j int) bool {
		return summary.Failed[i].ContentID < summary.Failed[j].ContentID
	})
	summary.Processed = len(contentIDs)
	summary.FinishedAt = time.Now().UTC()

	span.SetAttributes(
		attribute.Int("aggregate.processed", summary.Processed),
		attribute.Int("aggregate.failed", len(summary.Failed)),
	)

	duration := summary.FinishedAt.Sub(summary.StartedAt)
	if len(summary.Failed) > 0 {
		s.metrics.RecordAggregation("partial", duration, len(summary.Failed))
		s.log.Warn("aggregation finished with failures",
			zap.Int("processed", summary.Processed),
			zap.Int("failed", len(summary.Failed)),
		)
		return summary, &PartialAggregationError{Failed: summary.Failed}
	}

	s.metrics.RecordAggregation("ok", duration, 0)
	s.log.Info("aggregation finished", zap.Int("processed", summary.Processed))
	return summary, nil
}

// aggregateOne 计算单篇文章的汇总，并以一条 upsert 语句原子替换 post_stats 行。
func (s *AggregationService) aggregateOne(ctx context.Context, contentID string, now time.Time) error {
	tx := s.db.WithContext(ctx)

	var agg contentAggregate
	if err := tx.Model(&db.PageView{}).
		Select("COUNT(*) AS view_count, COUNT(DISTINCT visitor_id) AS unique_visitors, AVG(read_time_seconds) AS avg_read_time").
		Where("content_id = ?", contentID).
		Scan(&agg).Error; err != nil {
		return err
	}

	var latest db.PageView
	result := tx.Where("content_id = ?", contentID).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(1).
		Find(&latest)
	if result.Error != nil {
		return result.Error
	}

	stat := db.PostStat{
		ContentID:          contentID,
		ViewCount:          agg.ViewCount,
		UniqueVisitors:     agg.UniqueVisitors,
		AvgReadTimeSeconds: roundReadTime(agg.AvgReadTime),
		UpdatedAt:          now,
	}
	if result.RowsAffected > 0 {
		lastViewed := latest.Timestamp.UTC()
		stat.LastViewedAt = &lastViewed
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "content_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"view_count",
			"unique_visitors",
			"avg_read_time_seconds",
			"last_viewed_at",
			"updated_at",
		}),
	}).Create(&stat).Error
}

func roundReadTime(avg sql.NullFloat64) int64 {
	if !avg.Valid || avg.Float64 <= 0 {
		return 0
	}
	return int64(math.Round(avg.Float64))
}
