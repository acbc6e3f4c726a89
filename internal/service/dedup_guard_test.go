package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
	})
	return mr, client
}

func TestRedisDedupGuardClaimsOncePerWindow(t *testing.T) {
	mr, client := setupMiniRedis(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	guard := NewRedisDedupGuard(client, time.Minute, nil, nil)

	ok, err := guard.Claim(ctx, "post", "v1", now)
	if err != nil || !ok {
		t.Fatalf("first claim should succeed, got %v (%v)", ok, err)
	}
	ok, err = guard.Claim(ctx, "post", "v1", now.Add(30*time.Second))
	if err != nil || ok {
		t.Fatalf("second claim inside window should fail, got %v (%v)", ok, err)
	}
	ok, err = guard.Claim(ctx, "post", "v2", now)
	if err != nil || !ok {
		t.Fatalf("other visitor should claim, got %v (%v)", ok, err)
	}

	mr.FastForward(61 * time.Second)
	ok, err = guard.Claim(ctx, "post", "v1", now.Add(90*time.Second))
	if err != nil || !ok {
		t.Fatalf("claim after window should succeed, got %v (%v)", ok, err)
	}
}

func TestRedisDedupGuardRelease(t *testing.T) {
	_, client := setupMiniRedis(t)
	ctx := context.Background()
	now := time.Now().UTC()

	guard := NewRedisDedupGuard(client, time.Minute, nil, nil)
	if ok, _ := guard.Claim(ctx, "post", "v1", now); !ok {
		t.Fatalf("expected first claim to succeed")
	}
	guard.Release(ctx, "post", "v1")
	if ok, _ := guard.Claim(ctx, "post", "v1", now); !ok {
		t.Fatalf("expected claim to succeed after release")
	}
}

func TestRedisDedupGuardFallsBackToStore(t *testing.T) {
	mr, client := setupMiniRedis(t)
	gdb := setupServiceTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	seedView(t, gdb, "post", "v1", now.Add(-10*time.Second), nil, nil)
	mr.Close()

	guard := NewRedisDedupGuard(client, time.Minute, NewStoreDedupGuard(gdb, time.Minute), nil)
	ok, err := guard.Claim(ctx, "post", "v1", now)
	if err != nil {
		t.Fatalf("fallback should not error: %v", err)
	}
	if ok {
		t.Fatalf("store fallback should see the recent event")
	}
	ok, err = guard.Claim(ctx, "post", "v2", now)
	if err != nil || !ok {
		t.Fatalf("store fallback should allow new visitor, got %v (%v)", ok, err)
	}
}

func TestRecordViewWithRedisGuard(t *testing.T) {
	_, client := setupMiniRedis(t)
	gdb := setupServiceTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	svc := NewAnalyticsService(gdb).
		WithGuard(NewRedisDedupGuard(client, time.Minute, NewStoreDedupGuard(gdb, time.Minute), nil))

	in := ViewInput{ContentID: "post", VisitorID: "v1"}
	if ack, err := svc.RecordView(ctx, in, now); err != nil || ack != AckRecorded {
		t.Fatalf("expected recorded, got %s (%v)", ack, err)
	}
	if ack, err := svc.RecordView(ctx, in, now.Add(time.Second)); err != nil || ack != AckAlreadyTracked {
		t.Fatalf("expected already_tracked, got %s (%v)", ack, err)
	}
	if got := countViews(t, gdb, "post"); got != 1 {
		t.Fatalf("expected 1 event, got %d", got)
	}
}

func TestRedisDedupGuardSeparatesColonPairs(t *testing.T) {
	_, client := setupMiniRedis(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	guard := NewRedisDedupGuard(client, time.Minute, nil, nil)
	if ok, err := guard.Claim(ctx, "a:b", "c", now); err != nil || !ok {
		t.Fatalf("first pair should claim, got %v (%v)", ok, err)
	}
	if ok, err := guard.Claim(ctx, "a", "b:c", now); err != nil || !ok {
		t.Fatalf("distinct pair sharing the joined text should claim, got %v (%v)", ok, err)
	}
	if guard.key("a:b", "c") == guard.key("a", "b:c") {
		t.Fatalf("keys must differ for distinct pairs")
	}

	guard.Release(ctx, "a", "b:c")
	if ok, _ := guard.Claim(ctx, "a:b", "c", now); ok {
		t.Fatalf("releasing one pair must not free the other")
	}
}
