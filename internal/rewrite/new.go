package rewrite

import (
	"context"

	"github.com/deusflow/nieuwsmetai/internal/config"
	"github.com/deusflow/nieuwsmetai/internal/logger"
	"github.com/deusflow/nieuwsmetai/internal/metrics"
	"github.com/deusflow/nieuwsmetai/internal/ratelimit"
)

// New picks Gemini, then OpenAI, then the mock, depending on which API keys are configured.
// A Gemini client that cannot be created is logged and skipped.
func New(ctx context.Context, cfg *config.Config) *Service {
	opts := Options{
		Retries:    cfg.RewriteRetries,
		RetryDelay: cfg.RewriteRetryDelay,
		CacheTTL:   cfg.RewriteCacheTTL,
		Timeout:    cfg.RewriteTimeout,
	}
	limiter := ratelimit.NewRewriteLimiter(cfg.MaxRewriteRequests, cfg.RewriteInterval)

	var provider Provider
	if cfg.GeminiAPIKey != "" {
		g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("gemini unavailable", "error", err)
		} else {
			provider = g
		}
	}
	if provider == nil && cfg.OpenAIAPIKey != "" {
		provider = NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}

	name := ModelMock
	if provider != nil {
		name = provider.Name()
	}
	logger.Info("rewriter configured", "provider", name, "budget", cfg.MaxRewriteRequests, "interval", cfg.RewriteInterval)

	return NewService(provider, limiter, metrics.Global, opts)
}

// Model returns the provider name results are recorded under.
func (s *Service) Model() string {
	if s.provider == nil {
		return ModelMock
	}
	return s.provider.Name()
}
