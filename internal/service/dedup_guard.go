package service

import (
	"context"
	"fmt"
	"time"

	"github.com/blogpulse/internal/db"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DedupGuard 决定同一访客对同一文章的提交是否落在防刷窗口之外。
type DedupGuard interface {
	// Claim 返回 true 表示可以记录本次浏览。
	Claim(ctx context.Context, contentID, visitorID string, now time.Time) (bool, error)
	// Release 撤销一次成功的 Claim，用于写入失败后的回滚。
	Release(ctx context.Context, contentID, visitorID string)
}

// StoreDedupGuard 查询事件表判断窗口内是否已有记录。
// 检查与写入不在同一事务中，并发的两次提交可能同时通过。
type StoreDedupGuard struct {
	db     *gorm.DB
	window time.Duration
}

// NewStoreDedupGuard 创建基于事件表的防刷检查。
func NewStoreDedupGuard(gdb *gorm.DB, window time.Duration) *StoreDedupGuard {
	if window <= 0 {
		window = defaultDedupWindow
	}
	return &StoreDedupGuard{db: gdb, window: window}
}

// Claim 在窗口内不存在同一 (contentID, visitorID) 的事件时返回 true。
func (g *StoreDedupGuard) Claim(ctx context.Context, contentID, visitorID string, now time.Time) (bool, error) {
	var ids []uint
	err := g.db.WithContext(ctx).
		Model(&db.PageView{}).
		Where("content_id = ? AND visitor_id = ? AND timestamp >= ?", contentID, visitorID, now.UTC().Add(-g.window)).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return false, err
	}
	return len(ids) == 0, nil
}

// Release 无需操作，事件表本身就是判断依据。
func (g *StoreDedupGuard) Release(context.Context, string, string) {}

// RedisDedupGuard 使用 SET NX 原子占位，跨实例严格去重。
// Redis 不可用时退回到 fallback。
type RedisDedupGuard struct {
	client   *redis.Client
	prefix   string
	window   time.Duration
	fallback DedupGuard
	log      *zap.Logger
}

// NewRedisDedupGuard 创建基于 Redis 的防刷检查。
func NewRedisDedupGuard(client *redis.Client, window time.Duration, fallback DedupGuard, log *zap.Logger) *RedisDedupGuard {
	if window <= 0 {
		window = defaultDedupWindow
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisDedupGuard{
		client:   client,
		prefix:   "blogpulse:dedup:",
		window:   window,
		fallback: fallback,
		log:      log,
	}
}

// key 以 contentID 的字节长度作前缀，任意两组不同的标识都不会映射到同一个键。
func (g *RedisDedupGuard) key(contentID, visitorID string) string {
	return fmt.Sprintf("%s%d:%s:%s", g.prefix, len(contentID), contentID, visitorID)
}

// Claim 仅当占位键不存在时成功。
func (g *RedisDedupGuard) Claim(ctx context.Context, contentID, visitorID string, now time.Time) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(contentID, visitorID), now.UTC().UnixMilli(), g.window).Result()
	if err == nil {
		return ok, nil
	}
	if ctx.Err() != nil {
		return false, err
	}

	g.log.Warn("redis dedup unavailable, falling back to store check", zap.Error(err))
	if g.fallback == nil {
		return true, nil
	}
	return g.fallback.Claim(ctx, contentID, visitorID, now)
}

// Release 删除占位键。
func (g *RedisDedupGuard) Release(ctx context.Context, contentID, visitorID string) {
	if err := g.client.Del(ctx, g.key(contentID, visitorID)).Err(); err != nil {
		g.log.Warn("failed to release dedup claim", zap.Error(err))
	}
}
