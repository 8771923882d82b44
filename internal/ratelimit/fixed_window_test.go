package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", limit, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return limiter, mr
}

func TestFixedWindowLimiterBlocksAfterLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	ctx := context.Background()

	first := limiter.Allow(ctx, "203.0.113.5")
	if !first.Allowed || first.Remaining != 1 {
		t.Fatalf("first request: %+v", first)
	}
	if d := limiter.Allow(ctx, "203.0.113.5"); !d.Allowed || d.Remaining != 0 {
		t.Fatalf("second request: %+v", d)
	}
	third := limiter.Allow(ctx, "203.0.113.5")
	if third.Allowed {
		t.Fatalf("third request should be blocked")
	}
	if third.RetryAfter <= 0 || third.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry after: %v", third.RetryAfter)
	}
	if d := limiter.Allow(ctx, "198.51.100.1"); !d.Allowed {
		t.Fatalf("other keys must have their own window")
	}
}

func TestFixedWindowLimiterNewWindowResets(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	ctx := context.Background()

	if !limiter.Allow(ctx, "k").Allowed {
		t.Fatalf("first hit should pass")
	}
	if limiter.Allow(ctx, "k").Allowed {
		t.Fatalf("second hit in same window should fail")
	}
	limiter.now = func() time.Time { return base.Add(time.Minute) }
	if !limiter.Allow(ctx, "k").Allowed {
		t.Fatalf("next window should start fresh")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	limiter, mr := newTestLimiter(t, 5)
	mr.Close()
	if limiter.Allow(context.Background(), "k").Allowed {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestNewFixedWindowLimiterValidation(t *testing.T) {
	if _, err := NewFixedWindowLimiter(nil, "", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, err := NewFixedWindowLimiter(client, "", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
