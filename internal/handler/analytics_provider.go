package handler

import (
	"context"
	"time"

	"github.com/blogpulse/internal/db"
	"github.com/blogpulse/internal/service"
)

type viewRecorder interface {
	RecordView(ctx context.Context, in service.ViewInput, now time.Time) (service.Ack, error)
}

type statsAggregator interface {
	Aggregate(ctx context.Context, now time.Time) (service.Summary, error)
}

type statsQuerier interface {
	SiteStats(ctx context.Context) (service.SiteStats, error)
	PopularPosts(ctx context.Context, limit int) ([]service.PopularPost, error)
	PostStats(ctx context.Context, contentID string) (db.PostStat, error)
	ViewsByDateRange(ctx context.Context, start, end time.Time) ([]service.DailyViews, error)
	UniqueVisitorsByDateRange(ctx context.Context, start, end time.Time) (int64, error)
	RefererStats(ctx context.Context, limit int) ([]service.RefererStat, error)
	Overview(ctx context.Context, now time.Time) service.Overview
	Invalidate(ctx context.Context)
}

type credentialChecker interface {
	Authenticate(ctx context.Context, username, password string) (*db.User, error)
}
