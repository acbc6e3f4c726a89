package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/blogpulse/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AggregateStats 触发一次聚合。部分失败返回 207，全部失败返回 503。
func (a *API) AggregateStats(c *gin.Context) {
	if !a.cronAuthorized(c) {
		respondError(c, http.StatusUnauthorized, "未授权")
		return
	}

	ctx := c.Request.Context()
	summary, err := a.aggregator.Aggregate(ctx, a.now())
	if len(summary.Updated) > 0 {
		a.queries.Invalidate(ctx)
	}

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
	case errors.Is(err, service.ErrPartialAggregation):
		c.JSON(http.StatusMultiStatus, gin.H{"success": false, "summary": summary, "error": err.Error()})
	default:
		a.log.Error("aggregation trigger failed", zap.Error(err))
		c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "summary": summary, "error": "聚合失败"})
	}
}

// cronAuthorized 接受与 CRON_SECRET 一致的 Bearer 令牌或已登录的管理员会话。
// 未配置 CRON_SECRET 时只接受管理员会话。
func (a *API) cronAuthorized(c *gin.Context) bool {
	if a.cronSecret != "" {
		token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if found && subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(a.cronSecret)) == 1 {
			return true
		}
	}
	return a.authorizer.IsAuthorized(c)
}
