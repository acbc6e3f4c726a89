package handler

import (
	"time"

	"github.com/blogpulse/internal/observability"
	"github.com/blogpulse/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dependencies 描述 API 可注入的协作者，未提供的字段按 gorm 实例构造默认实现。
type Dependencies struct {
	Analytics  viewRecorder
	Aggregator statsAggregator
	Queries    statsQuerier
	Auth       credentialChecker
	Authorizer Authorizer
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	CronSecret string
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db         *gorm.DB
	analytics  viewRecorder
	aggregator statsAggregator
	queries    statsQuerier
	auth       credentialChecker
	authorizer Authorizer
	metrics    *observability.Metrics
	log        *zap.Logger
	cronSecret string
	now        func() time.Time
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB, deps Dependencies) *API {
	api := &API{
		db:         gdb,
		analytics:  deps.Analytics,
		aggregator: deps.Aggregator,
		queries:    deps.Queries,
		auth:       deps.Auth,
		authorizer: deps.Authorizer,
		metrics:    deps.Metrics,
		log:        deps.Logger,
		cronSecret: deps.CronSecret,
		now:        func() time.Time { return time.Now().UTC() },
	}

	if api.log == nil {
		api.log = zap.NewNop()
	}
	if api.analytics == nil {
		api.analytics = service.NewAnalyticsService(gdb).WithLogger(api.log).WithMetrics(api.metrics)
	}
	if api.aggregator == nil {
		api.aggregator = service.NewAggregationService(gdb).WithLogger(api.log).WithMetrics(api.metrics)
	}
	if api.queries == nil {
		api.queries = service.NewQueryService(gdb).WithLogger(api.log).WithMetrics(api.metrics)
	}
	if api.auth == nil {
		api.auth = service.NewAuthService(gdb)
	}
	if api.authorizer == nil {
		api.authorizer = SessionAuthorizer{}
	}

	return api
}
