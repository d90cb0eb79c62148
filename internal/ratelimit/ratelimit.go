package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/deusflow/nieuwsmetai/internal/logger"
)

// ErrBudgetExhausted is returned once the per-run request budget is spent.
var ErrBudgetExhausted = errors.New("rewrite request budget exhausted")

// RewriteLimiter caps and paces requests to the rewrite providers for one run.
type RewriteLimiter struct {
	mu       sync.Mutex
	counts   map[string]int
	total    int
	maxTotal int // 0 = unlimited
	pace     *rate.Limiter

	cacheHits   int
	cacheMisses int
}

// NewRewriteLimiter allows maxTotal requests (0 = unlimited), at most one per interval
// (0 = no pacing).
func NewRewriteLimiter(maxTotal int, interval time.Duration) *RewriteLimiter {
	rl := &RewriteLimiter{
		counts:   make(map[string]int),
		maxTotal: maxTotal,
	}
	if interval > 0 {
		rl.pace = rate.NewLimiter(rate.Every(interval), 1)
	}
	return rl
}

// CanUse reports whether another request fits in the budget.
func (rl *RewriteLimiter) CanUse() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.maxTotal <= 0 || rl.total < rl.maxTotal
}

// Use reserves one request for provider, waiting for the pacing limiter first.
func (rl *RewriteLimiter) Use(ctx context.Context, provider string) error {
	if rl.pace != nil {
		if err := rl.pace.Wait(ctx); err != nil {
			return err
		}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.maxTotal > 0 && rl.total >= rl.maxTotal {
		logger.Warn("rewrite budget reached", "used", rl.total, "limit", rl.maxTotal)
		return fmt.Errorf("%w (%d/%d)", ErrBudgetExhausted, rl.total, rl.maxTotal)
	}

	rl.counts[provider]++
	rl.total++
	rl.cacheMisses++

	logger.Debug("rewrite request", "provider", provider, "used", rl.counts[provider], "total", rl.total, "limit", rl.maxTotal)
	return nil
}

// RecordCacheHit counts a rewrite served from the response cache.
func (rl *RewriteLimiter) RecordCacheHit() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cacheHits++
}

func (rl *RewriteLimiter) hitRate() float64 {
	total := rl.cacheHits + rl.cacheMisses
	if total == 0 {
		return 0
	}
	return float64(rl.cacheHits) / float64(total) * 100
}

func (rl *RewriteLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	per := make(map[string]int, len(rl.counts))
	for k, v := range rl.counts {
		per[k] = v
	}
	return map[string]interface{}{
		"per_provider":   per,
		"total_used":     rl.total,
		"total_limit":    rl.maxTotal,
		"cache_hits":     rl.cacheHits,
		"cache_misses":   rl.cacheMisses,
		"cache_hit_rate": rl.hitRate(),
	}
}
