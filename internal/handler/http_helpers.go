package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/blogpulse/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	publicCacheControl = "public, s-maxage=300, stale-while-revalidate=600"
	noStoreCache       = "no-store"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// respondServiceError 把服务层的哨兵错误映射为 HTTP 状态码。
func respondServiceError(c *gin.Context, err error, message string) {
	c.Error(err)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		respondError(c, http.StatusUnauthorized, "未授权")
	case errors.Is(err, service.ErrStorageUnavailable):
		respondError(c, http.StatusServiceUnavailable, message)
	default:
		respondError(c, http.StatusInternalServerError, message)
	}
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

func parseLimitQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

// clientIP 优先使用代理头中的第一个地址。
func clientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(c.GetHeader("X-Real-IP")); realIP != "" {
		return realIP
	}
	return c.ClientIP()
}
