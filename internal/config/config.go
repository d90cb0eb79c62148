// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Feeds and taxonomy
	FeedsConfigPath string
	TaxonomyPath    string // optional YAML override of the built-in topics

	// Storage: file:<path>, sqlite:<path>, postgres://...
	StoreDSN string

	// Ingestion policy
	MinContentLen           int // minimum runes for a new article
	ExtractMinLen           int // extractor success threshold
	ScopeTitleDedupBySource bool

	// Network
	RequestTimeout   time.Duration
	UserAgent        string
	FeedConcurrency  int
	HostRateInterval time.Duration

	// Rewriter settings
	GeminiAPIKey        string
	GeminiModel         string
	OpenAIAPIKey        string
	OpenAIModel         string
	MaxRewriteRequests  int // per run, 0 = unlimited
	RewriteLang         string
	RewriteRetries      int
	RewriteRetryDelay   time.Duration
	RewriteCacheTTL     time.Duration
	RewriteTimeout      time.Duration
	RewriteInterval     time.Duration // min gap between provider requests, 0 = no pacing
	BackfillMinLen      int
	EnrichDeleteMaxLen  int
	EnrichTargetMinLen  int
	EnrichMinWords      int

	// HTTP read API
	HTTPAddr    string
	CORSOrigins []string

	// App settings
	LogLevel  string
	LogFormat string
	Debug     bool
}

func Load() (*Config, error) {
	cfg := &Config{
		// Default values
		FeedsConfigPath:    "configs/feeds.yaml",
		StoreDSN:           "file:articles.json",
		MinContentLen:      700,
		ExtractMinLen:      600,
		RequestTimeout:     10 * time.Second,
		UserAgent:          "NieuwsMetAI/1.0",
		FeedConcurrency:    1,
		HostRateInterval:   500 * time.Millisecond,
		GeminiModel:        "gemini-1.5-flash",
		OpenAIModel:        "gpt-4o-mini",
		RewriteLang:        "nl",
		RewriteRetries:     2,
		RewriteRetryDelay:  time.Second,
		RewriteCacheTTL:    6 * time.Hour,
		RewriteTimeout:     60 * time.Second,
		RewriteInterval:    500 * time.Millisecond,
		BackfillMinLen:     1000,
		EnrichDeleteMaxLen: 500,
		EnrichTargetMinLen: 1200,
		EnrichMinWords:     350,
		HTTPAddr:           ":8080",
		CORSOrigins: []string{
			"https://braksontimesai.me",
			"https://www.braksontimesai.me",
			"http://braksontimesai.me",
			"http://www.braksontimesai.me",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}

	cfg.FeedsConfigPath = getEnvOrDefault("FEEDS_CONFIG_PATH", cfg.FeedsConfigPath)
	cfg.TaxonomyPath = os.Getenv("TAXONOMY_PATH")
	cfg.StoreDSN = getEnvOrDefault("STORE_DSN", cfg.StoreDSN)

	cfg.MinContentLen = getEnvIntOrDefault("MIN_CONTENT_LEN", cfg.MinContentLen)
	cfg.ExtractMinLen = getEnvIntOrDefault("EXTRACT_MIN_LEN", cfg.ExtractMinLen)
	cfg.ScopeTitleDedupBySource = os.Getenv("SCOPE_TITLE_DEDUP_BY_SOURCE") == "true"

	cfg.RequestTimeout = getEnvDurationOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.UserAgent = getEnvOrDefault("USER_AGENT", cfg.UserAgent)
	cfg.FeedConcurrency = getEnvIntOrDefault("FEED_CONCURRENCY", cfg.FeedConcurrency)
	cfg.HostRateInterval = getEnvDurationOrDefault("HOST_RATE_INTERVAL", cfg.HostRateInterval)

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getEnvOrDefault("GEMINI_MODEL", cfg.GeminiModel)
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.MaxRewriteRequests = getEnvIntOrDefault("MAX_REWRITE_REQUESTS", cfg.MaxRewriteRequests)
	cfg.RewriteLang = getEnvOrDefault("REWRITE_LANG", cfg.RewriteLang)
	cfg.RewriteRetries = getEnvIntOrDefault("REWRITE_RETRIES", cfg.RewriteRetries)
	cfg.RewriteRetryDelay = getEnvDurationOrDefault("REWRITE_RETRY_DELAY", cfg.RewriteRetryDelay)
	cfg.RewriteCacheTTL = getEnvDurationOrDefault("REWRITE_CACHE_TTL", cfg.RewriteCacheTTL)
	cfg.RewriteTimeout = getEnvDurationOrDefault("REWRITE_TIMEOUT", cfg.RewriteTimeout)
	cfg.RewriteInterval = getEnvDurationOrDefault("REWRITE_INTERVAL", cfg.RewriteInterval)
	cfg.BackfillMinLen = getEnvIntOrDefault("BACKFILL_MIN_LEN", cfg.BackfillMinLen)
	cfg.EnrichDeleteMaxLen = getEnvIntOrDefault("ENRICH_DELETE_MAX_LEN", cfg.EnrichDeleteMaxLen)
	cfg.EnrichTargetMinLen = getEnvIntOrDefault("ENRICH_TARGET_MIN_LEN", cfg.EnrichTargetMinLen)
	cfg.EnrichMinWords = getEnvIntOrDefault("ENRICH_MIN_WORDS", cfg.EnrichMinWords)

	cfg.HTTPAddr = getEnvOrDefault("HTTP_ADDR", cfg.HTTPAddr)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("10s") or plain seconds ("10").
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.FeedsConfigPath == "" {
		return fmt.Errorf("FEEDS_CONFIG_PATH is required")
	}
	if c.StoreDSN == "" {
		return fmt.Errorf("STORE_DSN is required")
	}
	if c.MinContentLen <= 0 {
		return fmt.Errorf("MIN_CONTENT_LEN must be positive")
	}
	if c.ExtractMinLen <= 0 {
		return fmt.Errorf("EXTRACT_MIN_LEN must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.FeedConcurrency < 1 {
		return fmt.Errorf("FEED_CONCURRENCY must be at least 1")
	}
	if c.RewriteRetries < 0 {
		return fmt.Errorf("REWRITE_RETRIES must not be negative")
	}
	if c.RewriteInterval < 0 {
		return fmt.Errorf("REWRITE_INTERVAL must not be negative")
	}
	if c.MaxRewriteRequests < 0 {
		return fmt.Errorf("MAX_REWRITE_REQUESTS must not be negative")
	}
	return nil
}
