// Package rewrite translates and rewrites article text through an LLM provider, falling back
// to a deterministic mock when no provider is configured or a provider fails.
package rewrite

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deusflow/nieuwsmetai/internal/cache"
	"github.com/deusflow/nieuwsmetai/internal/logger"
	"github.com/deusflow/nieuwsmetai/internal/metrics"
	"github.com/deusflow/nieuwsmetai/internal/ratelimit"
	"github.com/deusflow/nieuwsmetai/internal/retry"
)

// ModelMock is recorded as the model of every mock result.
const ModelMock = "mock"

const (
	mockPrefixLen = 1000
	maxPromptText = 6000

	rewriteSystem = "Je bent een behulpzame vertaler en redacteur."
	expandSystem  = "Je bent een nauwkeurige redacteur die feitelijke context toevoegt."

	mockBackground = "\n\n[Achtergrond - MOCK]\n" +
		"Dit artikel is aangevuld met algemene context en mogelijke achtergronden. " +
		"Controleer bronnen voor de meest actuele stand van zaken."
)

// Result is one provider answer.
type Result struct {
	Text   string
	Meta   map[string]any
	Prompt string
	Model  string
}

// Rewriter translates/rewrites text and expands short articles.
type Rewriter interface {
	Rewrite(ctx context.Context, text, lang string) (Result, error)
	Expand(ctx context.Context, text, lang string, minWords int) (Result, error)
}

// Provider is a chat-style text generator.
type Provider interface {
	Name() string
	Generate(ctx context.Context, system, prompt string) (string, map[string]any, error)
}

// Mock never calls out. Rewrite keeps the first 1000 characters behind a language marker.
type Mock struct{}

func (Mock) Rewrite(_ context.Context, text, lang string) (Result, error) {
	if text == "" {
		return Result{Model: ModelMock}, nil
	}
	return Result{
		Text:  "[" + strings.ToUpper(lang) + " TRANSLATION - MOCK]\n" + truncateRunes(text, mockPrefixLen),
		Model: ModelMock,
	}, nil
}

func (Mock) Expand(_ context.Context, text, _ string, _ int) (Result, error) {
	if text == "" {
		return Result{Model: ModelMock}, nil
	}
	return Result{Text: text + mockBackground, Model: ModelMock}, nil
}

// Options tune the Service.
type Options struct {
	Retries    int           // extra attempts after the first
	RetryDelay time.Duration // linear backoff base
	CacheTTL   time.Duration // 0 disables the response cache
	Timeout    time.Duration // per provider call
}

// Service drives a Provider with retries, a request budget and a response cache.
type Service struct {
	provider Provider
	limiter  *ratelimit.RewriteLimiter
	cache    *cache.Cache[Result]
	metrics  *metrics.Metrics
	opts     Options
	fallback Mock
}

// NewService wraps provider. A nil limiter means unlimited; a nil metrics uses metrics.Global.
func NewService(provider Provider, limiter *ratelimit.RewriteLimiter, m *metrics.Metrics, opts Options) *Service {
	if limiter == nil {
		limiter = ratelimit.NewRewriteLimiter(0, 0)
	}
	if m == nil {
		m = metrics.Global
	}
	s := &Service{provider: provider, limiter: limiter, metrics: m, opts: opts}
	if opts.CacheTTL > 0 {
		s.cache = cache.New[Result](time.Hour)
	}
	return s
}

// Close releases the cache sweeper and the provider client.
func (s *Service) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	if c, ok := s.provider.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (s *Service) Rewrite(ctx context.Context, text, lang string) (Result, error) {
	if text == "" {
		return s.fallback.Rewrite(ctx, text, lang)
	}
	prompt := fmt.Sprintf("Vertaal en herschrijf het volgende artikel naar het %s en verbeter leesbaarheid en grammatica.\n\n%s",
		lang, prepareText(text))

	res, ok := s.generate(ctx, "rewrite", lang, rewriteSystem, prompt)
	if !ok {
		return s.fallback.Rewrite(ctx, text, lang)
	}
	return res, nil
}

func (s *Service) Expand(ctx context.Context, text, lang string, minWords int) (Result, error) {
	if text == "" {
		return s.fallback.Expand(ctx, text, lang, minWords)
	}
	prompt := fmt.Sprintf("Breid onderstaande tekst betekenisvol uit naar het %s. "+
		"Voeg feitelijke achtergrond, recente context en relevante uitleg toe. "+
		"Vermijd speculatie en hallucinaties; vermeld geen feiten die niet algemeen bekend of verifieerbaar zijn. "+
		"Doel: minimaal %d woorden.\n\nTEKST:\n%s", lang, minWords, prepareText(text))

	res, ok := s.generate(ctx, "expand", lang+":"+strconv.Itoa(minWords), expandSystem, prompt)
	if !ok {
		return s.fallback.Expand(ctx, text, lang, minWords)
	}
	if res.Meta == nil {
		res.Meta = map[string]any{}
	}
	res.Meta["task"] = "expand_article"
	return res, nil
}

// generate returns false when the caller should fall back to the mock.
func (s *Service) generate(ctx context.Context, task, variant, system, prompt string) (Result, bool) {
	if s.provider == nil {
		return Result{}, false
	}
	log := logger.With("provider", s.provider.Name(), "task", task)

	key := cache.GenerateKey(s.provider.Name(), task, variant, prompt)
	if s.cache != nil {
		if res, ok := s.cache.Get(key); ok {
			s.limiter.RecordCacheHit()
			s.metrics.IncrementRewriteCacheHits()
			log.Debug("rewrite served from cache")
			return res, true
		}
	}

	if !s.limiter.CanUse() {
		log.Warn("rewrite budget spent, falling back to mock")
		return Result{}, false
	}
	if err := s.limiter.Use(ctx, s.provider.Name()); err != nil {
		log.Warn("rewrite skipped, falling back to mock", "error", err)
		return Result{}, false
	}

	var text string
	var meta map[string]any
	err := retry.WithRetry(ctx, retry.RetryConfig{
		MaxAttempts: s.opts.Retries + 1,
		Delay:       s.opts.RetryDelay,
		Backoff:     true,
	}, func(ctx context.Context) error {
		callCtx := ctx
		if s.opts.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
			defer cancel()
		}
		var err error
		text, meta, err = s.provider.Generate(callCtx, system, prompt)
		if err == nil && strings.TrimSpace(text) == "" {
			err = fmt.Errorf("empty response from %s", s.provider.Name())
		}
		return err
	})
	if err != nil {
		s.metrics.IncrementFailedRewrites()
		log.Warn("provider failed, falling back to mock", "error", err)
		return Result{}, false
	}

	s.metrics.IncrementSuccessfulRewrites()
	res := Result{Text: strings.TrimSpace(text), Meta: meta, Prompt: prompt, Model: s.provider.Name()}
	if s.cache != nil {
		s.cache.Set(key, res, s.opts.CacheTTL)
	}
	return res, true
}

// Stats reports the request budget and cache counters of the current run.
func (s *Service) Stats() map[string]interface{} {
	return s.limiter.GetStats()
}

// prepareText normalizes line endings and spaces and caps very long input, preferring to cut at
// a sentence end.
func prepareText(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	text = strings.Join(lines, "\n")

	if utf8.RuneCountInString(text) <= maxPromptText {
		return text
	}
	trimmed := truncateRunes(text, maxPromptText)
	if idx := strings.LastIndex(trimmed, ". "); idx > 1200 {
		trimmed = trimmed[:idx+1]
	}
	return trimmed + "\n[TRUNCATED]"
}

// permanentStatus reports 4xx responses that a retry cannot fix. Timeouts and rate limits are
// retried.
func permanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
