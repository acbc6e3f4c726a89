package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blogpulse/internal/db"
	"github.com/blogpulse/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultDedupWindow   = time.Minute
	defaultSessionWindow = 30 * time.Minute
	defaultMinReadTime   = 5 * time.Second
	defaultIngestTimeout = 2 * time.Second

	maxIdentifierLength = 255
	maxReadTimeSeconds  = 24 * 60 * 60
)

var tracer = otel.Tracer("github.com/blogpulse/internal/service")

// Ack 描述一次浏览提交的处理结果，均为成功语义。
type Ack string

const (
	// AckRecorded 表示新增了一条浏览事件。
	AckRecorded Ack = "recorded"
	// AckAlreadyTracked 表示命中防刷窗口，未写入。
	AckAlreadyTracked Ack = "already_tracked"
	// AckReadTimeUpdated 表示阅读时长已写入最近一次浏览。
	AckReadTimeUpdated Ack = "read_time_updated"
	// AckReadTimeIgnored 表示阅读时长过短或找不到对应浏览，已丢弃。
	AckReadTimeIgnored Ack = "read_time_ignored"
	// AckDropped 表示防刷检查超时，本次浏览被放弃。
	AckDropped Ack = "dropped"
)

// ViewInput 是一次浏览或离开页面提交的原始数据。
// IP 只在内存中停留，写入前会被哈希。
type ViewInput struct {
	ContentID       string
	VisitorID       string
	IP              string
	UserAgent       string
	Referer         string
	ReadTimeSeconds *int
}

// AnalyticsService 负责记录文章浏览事件。
type AnalyticsService struct {
	db            *gorm.DB
	guard         DedupGuard
	hasher        IPHasher
	dedupWindow   time.Duration
	sessionWindow time.Duration
	minReadTime   time.Duration
	timeout       time.Duration
	log           *zap.Logger
	metrics       *observability.Metrics
}

// NewAnalyticsService 创建 AnalyticsService，默认防刷窗口为 1 分钟。
func NewAnalyticsService(gdb *gorm.DB) *AnalyticsService {
	return &AnalyticsService{
		db:            gdb,
		guard:         NewStoreDedupGuard(gdb, defaultDedupWindow),
		hasher:        NewSHA256Hasher(""),
		dedupWindow:   defaultDedupWindow,
		sessionWindow: defaultSessionWindow,
		minReadTime:   defaultMinReadTime,
		timeout:       defaultIngestTimeout,
		log:           zap.NewNop(),
	}
}

// WithDedupWindow 允许在测试或特定场景下调整防刷窗口。
func (s *AnalyticsService) WithDedupWindow(d time.Duration) *AnalyticsService {
	if d <= 0 {
		return s
	}
	s.dedupWindow = d
	if _, ok := s.guard.(*StoreDedupGuard); ok {
		s.guard = NewStoreDedupGuard(s.db, d)
	}
	return s
}

// WithGuard 替换防刷检查实现。
func (s *AnalyticsService) WithGuard(g DedupGuard) *AnalyticsService {
	if g != nil {
		s.guard = g
	}
	return s
}

// WithHasher 替换 IP 哈希实现。
func (s *AnalyticsService) WithHasher(h IPHasher) *AnalyticsService {
	if h != nil {
		s.hasher = h
	}
	return s
}

// WithSessionWindow 调整阅读时长回填可追溯的时间范围。
func (s *AnalyticsService) WithSessionWindow(d time.Duration) *AnalyticsService {
	if d > 0 {
		s.sessionWindow = d
	}
	return s
}

// WithMinReadTime 调整阅读时长的最小有效值。
func (s *AnalyticsService) WithMinReadTime(d time.Duration) *AnalyticsService {
	if d > 0 {
		s.minReadTime = d
	}
	return s
}

// WithTimeout 调整单次提交的超时时间。
func (s *AnalyticsService) WithTimeout(d time.Duration) *AnalyticsService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// WithLogger 设置日志实例。
func (s *AnalyticsService) WithLogger(log *zap.Logger) *AnalyticsService {
	if log != nil {
		s.log = log
	}
	return s
}

// WithMetrics 设置指标收集器。
func (s *AnalyticsService) WithMetrics(m *observability.Metrics) *AnalyticsService {
	s.metrics = m
	return s
}

// DedupWindow 返回当前防刷窗口。
func (s *AnalyticsService) DedupWindow() time.Duration {
	return s.dedupWindow
}

// RecordView 记录一次浏览；携带阅读时长的提交视为离开页面的补充信息。
func (s *AnalyticsService) RecordView(ctx context.Context, in ViewInput, now time.Time) (Ack, error) {
	contentID := strings.TrimSpace(in.ContentID)
	visitorID := strings.TrimSpace(in.VisitorID)
	if err := validateIdentifiers(contentID, visitorID); err != nil {
		return "", err
	}
	if in.ReadTimeSeconds != nil {
		if *in.ReadTimeSeconds < 0 {
			return "", invalidInput("readTimeSeconds must not be negative")
		}
		if *in.ReadTimeSeconds > maxReadTimeSeconds {
			return "", invalidInput("readTimeSeconds must be at most %d", maxReadTimeSeconds)
		}
	}

	now = now.UTC()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "analytics.RecordView")
	span.SetAttributes(attribute.String("content.id", contentID))
	defer span.End()

	var (
		ack Ack
		err error
	)
	if in.ReadTimeSeconds != nil {
		ack, err = s.recordDeparture(ctx, contentID, visitorID, *in.ReadTimeSeconds, now)
	} else {
		ack, err = s.recordArrival(ctx, contentID, visitorID, in, now)
	}
	if err != nil {
		span.RecordError(err)
		s.metrics.RecordView("error")
		return "", err
	}

	span.SetAttributes(attribute.String("ack", string(ack)))
	s.metrics.RecordView(string(ack))
	return ack, nil
}

func (s *AnalyticsService) recordArrival(ctx context.Context, contentID, visitorID string, in ViewInput, now time.Time) (Ack, error) {
	allowed, err := s.guard.Claim(ctx, contentID, visitorID, now)
	if err != nil {
		if ctx.Err() != nil {
			s.log.Warn("anti-abuse check timed out, dropping view",
				zap.String("contentId", contentID),
				zap.Duration("timeout", s.timeout),
			)
			return AckDropped, nil
		}
		return "", storageUnavailable("dedup check", err)
	}
	if !allowed {
		return AckAlreadyTracked, nil
	}

	event := db.PageView{
		ContentID: contentID,
		VisitorID: visitorID,
		IPHash:    optionalString(s.hasher.Hash(in.IP)),
		UserAgent: optionalString(in.UserAgent),
		Referer:   optionalString(in.Referer),
		Timestamp: now,
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.guard.Release(context.WithoutCancel(ctx), contentID, visitorID)
		return "", storageUnavailable("append page view", err)
	}

	return AckRecorded, nil
}

// recordDeparture 把阅读时长写入会话窗口内最近的一次浏览，从不新增事件。
func (s *AnalyticsService) recordDeparture(ctx context.Context, contentID, visitorID string, seconds int, now time.Time) (Ack, error) {
	if seconds < minReadSeconds(s.minReadTime) {
		return AckReadTimeIgnored, nil
	}

	var latest db.PageView
	result := s.db.WithContext(ctx).
		Where("content_id = ? AND visitor_id = ? AND timestamp >= ?", contentID, visitorID, now.Add(-s.sessionWindow)).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(1).
		Find(&latest)
	if result.Error != nil {
		return "", storageUnavailable("find latest page view", result.Error)
	}
	if result.RowsAffected == 0 {
		return AckReadTimeIgnored, nil
	}

	if err := s.db.WithContext(ctx).
		Model(&db.PageView{}).
		Where("id = ?", latest.ID).
		Update("read_time_seconds", seconds).Error; err != nil {
		return "", storageUnavailable("update read time", err)
	}

	return AckReadTimeUpdated, nil
}

func validateIdentifiers(contentID, visitorID string) error {
	if contentID == "" || visitorID == "" {
		return invalidInput("contentId and visitorId are required")
	}
	for _, id := range []string{contentID, visitorID} {
		if !utf8.ValidString(id) || strings.ContainsRune(id, 0) {
			return invalidInput("identifiers must be valid UTF-8 without NUL bytes")
		}
		if utf8.RuneCountInString(id) > maxIdentifierLength {
			return invalidInput("identifiers must be at most %d characters", maxIdentifierLength)
		}
	}
	return nil
}

// minReadSeconds 把最小阅读时长向上取整为秒。
func minReadSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

// optionalString 清理可选的请求头字段，去掉 NUL 与非法 UTF-8。
func optionalString(value string) *string {
	cleaned := strings.ToValidUTF8(strings.ReplaceAll(value, "\x00", ""), "")
	trimmed := strings.TrimSpace(cleaned)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
