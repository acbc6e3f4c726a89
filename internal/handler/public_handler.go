package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/blogpulse/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	visitorCookieName   = "bp_visitor_id"
	visitorCookieMaxAge = 365 * 24 * 60 * 60

	publicPopularLimit = 10
)

// trackRequest 兼容前端埋点脚本的两种字段命名。
type trackRequest struct {
	Slug            string `json:"slug"`
	ContentID       string `json:"contentId"`
	VisitorID       string `json:"visitorId"`
	ReadTime        *int   `json:"readTime"`
	ReadTimeSeconds *int   `json:"readTimeSeconds"`
}

var ackMessages = map[service.Ack]string{
	service.AckAlreadyTracked:  "Already tracked",
	service.AckReadTimeUpdated: "Read time updated",
	service.AckReadTimeIgnored: "Read time ignored",
	service.AckDropped:         "Dropped",
}

// TrackView 接收浏览与离开页面的埋点。命中防刷窗口同样返回成功。
func (a *API) TrackView(c *gin.Context) {
	var req trackRequest
	if !bindJSON(c, &req, "请求体格式错误") {
		return
	}

	contentID := strings.TrimSpace(req.ContentID)
	if contentID == "" {
		contentID = strings.TrimSpace(req.Slug)
	}
	visitorID := strings.TrimSpace(req.VisitorID)
	if visitorID == "" {
		if id, err := c.Cookie(visitorCookieName); err == nil {
			visitorID = strings.TrimSpace(id)
		}
	}
	readTime := req.ReadTimeSeconds
	if readTime == nil {
		readTime = req.ReadTime
	}

	ack, err := a.analytics.RecordView(c.Request.Context(), service.ViewInput{
		ContentID:       contentID,
		VisitorID:       visitorID,
		IP:              clientIP(c),
		UserAgent:       c.GetHeader("User-Agent"),
		Referer:         c.GetHeader("Referer"),
		ReadTimeSeconds: readTime,
	}, a.now())
	if err != nil {
		respondServiceError(c, err, "记录浏览失败")
		return
	}

	payload := gin.H{"success": true, "result": ack}
	if message, ok := ackMessages[ack]; ok {
		payload["message"] = message
	}
	c.JSON(http.StatusOK, payload)
}

// PublicStats 返回首页展示用的热门文章与全站统计。
func (a *API) PublicStats(c *gin.Context) {
	ctx := c.Request.Context()

	popular, err := a.queries.PopularPosts(ctx, parseLimitQuery(c, "limit", publicPopularLimit))
	if err != nil {
		respondServiceError(c, err, "获取热门文章失败")
		return
	}
	site, err := a.queries.SiteStats(ctx)
	if err != nil {
		respondServiceError(c, err, "获取站点统计失败")
		return
	}

	c.Header("Cache-Control", publicCacheControl)
	c.JSON(http.StatusOK, gin.H{
		"popularPosts": popular,
		"siteStats":    site,
	})
}

// PostStats 返回单篇文章的统计，并为尚无访客标识的浏览器签发 cookie，供离开页面的埋点回退使用。
func (a *API) PostStats(c *gin.Context) {
	_, issued := a.ensureVisitorID(c)

	stats, err := a.queries.PostStats(c.Request.Context(), strings.TrimSpace(c.Param("slug")))
	if err != nil {
		respondServiceError(c, err, "获取文章统计失败")
		return
	}

	// 携带 Set-Cookie 的响应不能被共享缓存。
	if issued {
		c.Header("Cache-Control", noStoreCache)
	} else {
		c.Header("Cache-Control", publicCacheControl)
	}
	c.JSON(http.StatusOK, stats)
}

func (a *API) ensureVisitorID(c *gin.Context) (string, bool) {
	if id, err := c.Cookie(visitorCookieName); err == nil && strings.TrimSpace(id) != "" {
		return id, false
	}

	visitorID := uuid.NewString()
	secure := c.Request.TLS != nil

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     visitorCookieName,
		Value:    visitorID,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		MaxAge:   visitorCookieMaxAge,
		Expires:  time.Now().Add(365 * 24 * time.Hour),
		SameSite: http.SameSiteLaxMode,
	})

	return visitorID, true
}
