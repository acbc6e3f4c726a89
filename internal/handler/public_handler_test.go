package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blogpulse/internal/db"
	"github.com/blogpulse/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:handler-%d?mode=memory&cache=shared", time.Now().UnixNano())
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

func newTestRouter(api *API) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(sessions.Sessions("blogpulse_session", cookie.NewStore([]byte("test-secret"))))
	r.POST("/api/analytics/track", api.TrackView)
	r.GET("/api/analytics/stats", api.PublicStats)
	r.GET("/api/analytics/posts/:slug", api.PostStats)
	r.GET("/api/cron/aggregate-stats", api.AggregateStats)
	r.POST("/api/cron/aggregate-stats", api.AggregateStats)
	r.POST("/admin/login", api.Login)
	r.POST("/admin/logout", api.Logout)
	r.GET("/api/admin/analytics", api.AuthRequired(), api.AdminAnalytics)
	r.GET("/healthz", api.HealthCheck)
	r.GET("/metrics", api.Metrics)
	return r
}

func postJSON(r http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var payload map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode body %q: %v", rr.Body.String(), err)
	}
	return payload
}

type recorderStub struct {
	ack   service.Ack
	err   error
	calls []service.ViewInput
}

func (s *recorderStub) RecordView(_ context.Context, in service.ViewInput, _ time.Time) (service.Ack, error) {
	s.calls = append(s.calls, in)
	return s.ack, s.err
}

func TestTrackViewRecordsAndDedups(t *testing.T) {
	gdb := setupHandlerTestDB(t)
	r := newTestRouter(NewAPI(gdb, Dependencies{}))

	body := `{"slug":"hello-world","visitorId":"visitor-1"}`

	first := postJSON(r, "/api/analytics/track", body, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}
	if payload := decodeBody(t, first); payload["success"] != true || payload["message"] != nil {
		t.Fatalf("unexpected first payload: %v", payload)
	}

	second := postJSON(r, "/api/analytics/track", body, nil)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", second.Code)
	}
	if payload := decodeBody(t, second); payload["message"] != "Already tracked" {
		t.Fatalf("expected Already tracked, got %v", payload)
	}

	var count int64
	gdb.Model(&db.PageView{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 stored event, got %d", count)
	}

	departure := postJSON(r, "/api/analytics/track", `{"contentId":"hello-world","visitorId":"visitor-1","readTime":30}`, nil)
	if payload := decodeBody(t, departure); payload["message"] != "Read time updated" {
		t.Fatalf("expected Read time updated, got %v", payload)
	}
}

func TestTrackViewRejectsInvalidInput(t *testing.T) {
	gdb := setupHandlerTestDB(t)
	r := newTestRouter(NewAPI(gdb, Dependencies{}))

	cases := []string{
		`{"slug":"hello-world"}`,
		`{"visitorId":"visitor-1"}`,
		`not json`,
		`{"slug":"hello-world","visitorId":"visitor-1","readTime":1000000000000}`,
		`{"slug":"hello\u0000world","visitorId":"visitor-1"}`,
	}
	for _, body := range cases {
		rr := postJSON(r, "/api/analytics/track", body, nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, rr.Code)
		}
	}
}

func TestTrackViewPassesRequestAttributes(t *testing.T) {
	stub := &recorderStub{ack: service.AckRecorded}
	r := newTestRouter(NewAPI(setupHandlerTestDB(t), Dependencies{Analytics: stub}))

	rr := postJSON(r, "/api/analytics/track", `{"slug":"p","visitorId":"v"}`, map[string]string{
		"X-Forwarded-For": "203.0.113.7, 10.0.0.1",
		"User-Agent":      "test-agent",
		"Referer":         "https://x.com/post",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(stub.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(stub.calls))
	}
	in := stub.calls[0]
	if in.IP != "203.0.113.7" || in.UserAgent != "test-agent" || in.Referer != "https://x.com/post" {
		t.Fatalf("unexpected view input: %+v", in)
	}
	if in.ReadTimeSeconds != nil {
		t.Fatalf("arrival should not carry read time")
	}
}

func TestTrackViewFallsBackToVisitorCookie(t *testing.T) {
	stub := &recorderStub{ack: service.AckRecorded}
	r := newTestRouter(NewAPI(setupHandlerTestDB(t), Dependencies{Analytics: stub}))

	req := httptest.NewRequest(http.MethodPost, "/api/analytics/track", strings.NewReader(`{"slug":"p"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: visitorCookieName, Value: "cookie-visitor"})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || len(stub.calls) != 1 || stub.calls[0].VisitorID != "cookie-visitor" {
		t.Fatalf("expected cookie visitor id, got %d %+v", rr.Code, stub.calls)
	}
}

func TestTrackViewStorageUnavailable(t *testing.T) {
	stub := &recorderStub{err: fmt.Errorf("%w: append page view: disk full", service.ErrStorageUnavailable)}
	r := newTestRouter(NewAPI(setupHandlerTestDB(t), Dependencies{Analytics: stub}))

	rr := postJSON(r, "/api/analytics/track", `{"slug":"p","visitorId":"v"}`, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestPublicStatsSetsCacheHeaders(t *testing.T) {
	gdb := setupHandlerTestDB(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := gdb.Create(&db.PostStat{ContentID: "hello", ViewCount: 3, UniqueVisitors: 2, UpdatedAt: now}).Error; err != nil {
		t.Fatalf("failed to seed stats: %v", err)
	}
	r := newTestRouter(NewAPI(gdb, Dependencies{}))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/analytics/stats", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Cache-Control"); got != publicCacheControl {
		t.Fatalf("unexpected Cache-Control: %q", got)
	}

	var payload struct {
		PopularPosts []service.PopularPost `json:"popularPosts"`
		SiteStats    service.SiteStats     `json:"siteStats"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(payload.PopularPosts) != 1 || payload.PopularPosts[0].ContentID != "hello" {
		t.Fatalf("unexpected popular posts: %+v", payload.PopularPosts)
	}
	if payload.SiteStats.TotalViews != 3 || payload.SiteStats.TotalPosts != 1 {
		t.Fatalf("unexpected site stats: %+v", payload.SiteStats)
	}
}

func TestPostStatsIssuesVisitorCookie(t *testing.T) {
	r := newTestRouter(NewAPI(setupHandlerTestDB(t), Dependencies{}))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/analytics/posts/missing", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Set-Cookie"), visitorCookieName+"=") {
		t.Fatalf("expected visitor cookie, got %q", rr.Header().Get("Set-Cookie"))
	}
	if got := rr.Header().Get("Cache-Control"); got != noStoreCache {
		t.Fatalf("responses issuing cookies must not be shared-cached, got %q", got)
	}
	if payload := decodeBody(t, rr); payload["contentId"] != "missing" || payload["viewCount"] != float64(0) {
		t.Fatalf("unexpected payload: %v", payload)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/posts/missing", nil)
	req.AddCookie(&http.Cookie{Name: visitorCookieName, Value: "known"})
	cached := httptest.NewRecorder()
	r.ServeHTTP(cached, req)
	if got := cached.Header().Get("Cache-Control"); got != publicCacheControl {
		t.Fatalf("expected public cache headers for known visitor, got %q", got)
	}
}

func TestHealthCheckAndMetrics(t *testing.T) {
	r := newTestRouter(NewAPI(setupHandlerTestDB(t), Dependencies{}))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", rr.Code)
	}
}
