package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr        string
	Port              string
	DatabaseDriver    string
	DatabasePath      string
	DatabaseURL       string
	SessionSecret     string
	GinMode           string
	SuperRootUserName string
	SuperRootPassword string

	// CronSecret 为空时聚合触发端点只接受管理员会话。
	CronSecret        string
	AggregateSchedule string
	AggregateWorkers  int

	DedupWindow   time.Duration
	DedupMode     string
	SessionWindow time.Duration
	MinReadTime   time.Duration
	IngestTimeout time.Duration
	IPHashSalt    string

	QueryCacheTTL  time.Duration
	QueryCacheSize int
	RedisURL       string
	// ContentCatalog 决定热门文章是否按 posts 表的发布状态过滤。
	ContentCatalog string

	LogLevel     string
	LogFormat    string
	OTelEnabled  bool
	OTelEndpoint string
}

const (
	// DedupModeStore 使用事件表做“先读后写”的防刷检查。
	DedupModeStore = "store"
	// DedupModeRedis 使用 Redis SET NX 做跨实例的原子防刷检查。
	DedupModeRedis = "redis"

	// ContentCatalogNone 不过滤热门文章。
	ContentCatalogNone = "none"
	// ContentCatalogPosts 只保留 posts 表中已发布的文章。
	ContentCatalogPosts = "posts"
)

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := envOr("PORT", "8080")

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	driver := strings.ToLower(envOr("DATABASE_DRIVER", "sqlite"))
	if driver != "postgres" {
		driver = "sqlite"
	}

	dedupMode := strings.ToLower(envOr("DEDUP_MODE", DedupModeStore))
	if dedupMode != DedupModeRedis {
		dedupMode = DedupModeStore
	}

	catalog := strings.ToLower(envOr("CONTENT_CATALOG", ContentCatalogNone))
	if catalog != ContentCatalogPosts {
		catalog = ContentCatalogNone
	}

	return AppConfig{
		ListenAddr:        listenAddr,
		Port:              port,
		DatabaseDriver:    driver,
		DatabasePath:      envOr("DATABASE_PATH", "blogpulse.db"),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SessionSecret:     envOr("SESSION_SECRET", "blogpulse-dev-secret"),
		GinMode:           envOr("GIN_MODE", "release"),
		SuperRootUserName: strings.TrimSpace(os.Getenv("SUPER_ROOT_USER_NAME")),
		SuperRootPassword: strings.TrimSpace(os.Getenv("SUPER_ROOT_PASSWORD")),

		CronSecret:        strings.TrimSpace(os.Getenv("CRON_SECRET")),
		AggregateSchedule: envOr("AGGREGATE_SCHEDULE", "*/15 * * * *"),
		AggregateWorkers:  envInt("AGGREGATE_CONCURRENCY", 4),

		DedupWindow:   envDuration("DEDUP_WINDOW", time.Minute),
		DedupMode:     dedupMode,
		SessionWindow: envDuration("SESSION_WINDOW", 30*time.Minute),
		MinReadTime:   envDuration("MIN_READ_TIME", 5*time.Second),
		IngestTimeout: envDuration("INGEST_TIMEOUT", 2*time.Second),
		IPHashSalt:    strings.TrimSpace(os.Getenv("IP_HASH_SALT")),

		QueryCacheTTL:  envDuration("QUERY_CACHE_TTL", 300*time.Second),
		QueryCacheSize: envInt("QUERY_CACHE_SIZE", 256),
		RedisURL:       strings.TrimSpace(os.Getenv("REDIS_URL")),
		ContentCatalog: catalog,

		LogLevel:     strings.ToLower(envOr("LOG_LEVEL", "info")),
		LogFormat:    strings.ToLower(envOr("LOG_FORMAT", "json")),
		OTelEnabled:  envBool("OTEL_ENABLED"),
		OTelEndpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
	}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// envDuration 同时接受 time.ParseDuration 格式与纯数字秒数。
func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return fallback
		}
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
