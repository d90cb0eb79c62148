package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRewriteLimiterBudget(t *testing.T) {
	rl := NewRewriteLimiter(2, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := rl.Use(ctx, "gemini"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if rl.CanUse() {
		t.Fatal("budget should be spent")
	}
	if err := rl.Use(ctx, "openai"); !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}

	stats := rl.GetStats()
	if stats["total_used"].(int) != 2 {
		t.Errorf("total_used = %v", stats["total_used"])
	}
	if stats["per_provider"].(map[string]int)["gemini"] != 2 {
		t.Errorf("per_provider = %v", stats["per_provider"])
	}
}

func TestRewriteLimiterUnlimited(t *testing.T) {
	rl := NewRewriteLimiter(0, 0)
	for i := 0; i < 50; i++ {
		if err := rl.Use(context.Background(), "mock"); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRewriteLimiterCacheHitRate(t *testing.T) {
	rl := NewRewriteLimiter(0, 0)
	_ = rl.Use(context.Background(), "gemini")
	rl.RecordCacheHit()
	if got := rl.GetStats()["cache_hit_rate"].(float64); got != 50 {
		t.Fatalf("cache_hit_rate = %v, want 50", got)
	}
}

func TestRewriteLimiterPacing(t *testing.T) {
	rl := NewRewriteLimiter(0, 100*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Use(ctx, "gemini"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("3 paced requests took %v, want at least two intervals", elapsed)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := rl.Use(cancelled, "gemini"); err == nil {
		t.Error("expected an error when the context is cancelled while waiting")
	}
}
