package router

import (
	"github.com/blogpulse/internal/handler"
	"github.com/blogpulse/internal/observability"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionName 是后台会话 cookie 的名称。
const SessionName = "blogpulse_session"

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log))

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
	})
	r.Use(sessions.Sessions(SessionName, store))

	r.GET("/healthz", api.HealthCheck)
	r.GET("/metrics", api.Metrics)

	analytics := r.Group("/api/analytics")
	{
		analytics.POST("/track", api.TrackView)
		analytics.GET("/stats", api.PublicStats)
		analytics.GET("/posts/:slug", api.PostStats)
	}

	cron := r.Group("/api/cron")
	{
		cron.GET("/aggregate-stats", api.AggregateStats)
		cron.POST("/aggregate-stats", api.AggregateStats)
	}

	// 后台管理路由
	admin := r.Group("/admin")
	{
		admin.POST("/login", api.Login)
		admin.POST("/logout", api.Logout)
	}

	adminAPI := r.Group("/api/admin")
	adminAPI.Use(api.AuthRequired())
	{
		adminAPI.GET("/analytics", api.AdminAnalytics)
	}

	return r
}
