package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/blogpulse/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	sessionUserIDKey   = "user_id"
	sessionUsernameKey = "username"
	dateQueryLayout    = "2006-01-02"
)

// Authorizer 判断当前请求是否具备后台管理权限。
type Authorizer interface {
	IsAuthorized(c *gin.Context) bool
}

// SessionAuthorizer 以会话中的 user_id 作为登录凭证。
type SessionAuthorizer struct{}

// IsAuthorized 在会话中存在 user_id 时返回 true。
func (SessionAuthorizer) IsAuthorized(c *gin.Context) bool {
	return sessions.Default(c).Get(sessionUserIDKey) != nil
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Login 校验账号密码并写入会话，支持表单与 JSON 两种提交方式。
func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误")
		return
	}

	user, err := a.auth.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			respondError(c, http.StatusUnauthorized, "用户名或密码错误")
			return
		}
		respondServiceError(c, err, "登录失败")
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUserIDKey, user.ID)
	session.Set(sessionUsernameKey, user.Username)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "会话保存失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "username": user.Username})
}

// Logout 清空会话。
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		c.Error(err)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AuthRequired 拦截未登录的后台请求。
func (a *API) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authorizer.IsAuthorized(c) {
			respondError(c, http.StatusUnauthorized, "未授权")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminAnalytics 返回后台仪表盘数据，type=overview 为默认视图，type=range 按日期区间统计。
func (a *API) AdminAnalytics(c *gin.Context) {
	c.Header("Cache-Control", noStoreCache)
	ctx := c.Request.Context()

	switch strings.TrimSpace(c.DefaultQuery("type", "overview")) {
	case "overview":
		c.JSON(http.StatusOK, a.queries.Overview(ctx, a.now()))
	case "range":
		start, end, ok := parseDateRange(c)
		if !ok {
			respondError(c, http.StatusBadRequest, "日期区间格式应为 YYYY-MM-DD")
			return
		}
		series, err := a.queries.ViewsByDateRange(ctx, start, end)
		if err != nil {
			respondServiceError(c, err, "获取访问趋势失败")
			return
		}
		unique, err := a.queries.UniqueVisitorsByDateRange(ctx, start, end)
		if err != nil {
			respondServiceError(c, err, "获取独立访客失败")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"start":          start.Format(dateQueryLayout),
			"end":            end.Format(dateQueryLayout),
			"chartData":      series,
			"uniqueVisitors": unique,
		})
	default:
		respondError(c, http.StatusBadRequest, "不支持的统计类型")
	}
}

// parseDateRange 解析 start/end，end 包含当天全部时间。
func parseDateRange(c *gin.Context) (time.Time, time.Time, bool) {
	start, err := time.ParseInLocation(dateQueryLayout, strings.TrimSpace(c.Query("start")), time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err := time.ParseInLocation(dateQueryLayout, strings.TrimSpace(c.Query("end")), time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end.Add(24*time.Hour - time.Nanosecond), true
}
