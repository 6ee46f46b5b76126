package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestMemoryLimiterWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: clock.Now})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "vault:rl:documents:alice", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if decision.Remaining != 2-i {
			t.Fatalf("expected remaining %d, got %d", 2-i, decision.Remaining)
		}
	}

	decision, err := limiter.Allow(ctx, "vault:rl:documents:alice", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed || decision.Remaining != 0 {
		t.Fatalf("expected fourth request to be limited, got %+v", decision)
	}
	if !decision.ResetAt.Equal(clock.now.Add(time.Minute)) {
		t.Fatalf("unexpected reset %s", decision.ResetAt)
	}

	other, err := limiter.Allow(ctx, "vault:rl:documents:bob", 3, time.Minute)
	if err != nil || !other.Allowed {
		t.Fatalf("expected independent bucket for another key: %+v %v", other, err)
	}

	clock.now = clock.now.Add(time.Minute + time.Second)
	decision, err = limiter.Allow(ctx, "vault:rl:documents:alice", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !decision.Allowed || decision.Remaining != 2 {
		t.Fatalf("expected fresh window, got %+v", decision)
	}
}

func TestMemoryLimiterUnlimited(t *testing.T) {
	limiter := NewMemoryLimiter(MemoryLimiterConfig{})
	decision, err := limiter.Allow(context.Background(), "k", 0, time.Minute)
	if err != nil || !decision.Allowed {
		t.Fatalf("expected zero limit to allow, got %+v %v", decision, err)
	}
	if limiter.Len() != 0 {
		t.Fatalf("expected no bucket for unlimited calls")
	}
}

func TestMemoryLimiterCapacity(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: clock.Now, MaxKeys: 2})
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		if _, err := limiter.Allow(ctx, key, 1, time.Minute); err != nil {
			t.Fatalf("allow %s: %v", key, err)
		}
	}
	if _, err := limiter.Allow(ctx, "c", 1, time.Minute); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity error, got %v", err)
	}

	clock.now = clock.now.Add(2 * time.Minute)
	if _, err := limiter.Allow(ctx, "c", 1, time.Minute); err != nil {
		t.Fatalf("expected expired buckets to be collected: %v", err)
	}
	if limiter.Len() != 1 {
		t.Fatalf("expected one live bucket, got %d", limiter.Len())
	}
}

func TestDecisionFor(t *testing.T) {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	decision := decisionFor(5, 1500, 4, now)
	if decision.Allowed {
		t.Fatalf("expected count above limit to be refused")
	}
	if decision.Remaining != 0 {
		t.Fatalf("expected remaining clamped to zero, got %d", decision.Remaining)
	}
	if !decision.ResetAt.Equal(now.Add(1500 * time.Millisecond)) {
		t.Fatalf("unexpected reset %s", decision.ResetAt)
	}
	decision = decisionFor(4, -1, 4, now)
	if !decision.Allowed || !decision.ResetAt.Equal(now) {
		t.Fatalf("expected last slot allowed, got %+v", decision)
	}
}

func TestNewRedisLimiterRequiresAddr(t *testing.T) {
	if _, err := NewRedisLimiter(RedisConfig{}); err == nil {
		t.Fatalf("expected error without addr")
	}
}
