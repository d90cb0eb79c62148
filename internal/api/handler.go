// Package api serves the stored articles read-only over HTTP.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/nieuwsmetai/internal/logger"
	"github.com/deusflow/nieuwsmetai/internal/metrics"
	"github.com/deusflow/nieuwsmetai/internal/storage"
)

const (
	defaultArticleLimit     = 50
	defaultTranslationLimit = 20
	maxLimit                = 100
)

// StatsSource reports component counters merged into /metrics.
type StatsSource interface {
	Stats() map[string]interface{}
}

type Handler struct {
	store    storage.Store
	metrics  *metrics.Metrics
	rewrites StatsSource
}

// NewHandler builds the handler. rewrites may be nil.
func NewHandler(store storage.Store, m *metrics.Metrics, rewrites StatsSource) *Handler {
	if m == nil {
		m = metrics.Global
	}
	return &Handler{store: store, metrics: m, rewrites: rewrites}
}

func (h *Handler) GetHealth(c *gin.Context) {
	stats := h.metrics.GetStats()

	status := "ok"
	code := http.StatusOK
	if !h.metrics.Healthy() {
		status = "error"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func (h *Handler) GetMetrics(c *gin.Context) {
	stats := h.metrics.GetStats()
	if h.rewrites != nil {
		stats["rewrite_limiter"] = h.rewrites.Stats()
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListArticles(c *gin.Context) {
	limit := getQueryLimit(c, "limit", defaultArticleLimit)

	articles, err := h.store.Find(c.Request.Context(), storage.Filter{}, storage.FindOptions{Limit: limit, Sort: storage.SortFetchedDesc})
	if err != nil {
		logger.Error("error listing articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res := make([]ArticleSummary, 0, len(articles))
	for _, a := range articles {
		tags := a.Tags
		if tags == nil {
			tags = []string{}
		}
		res = append(res, ArticleSummary{
			ID:         a.ID,
			Title:      a.Title,
			URL:        a.URL,
			ImageURL:   a.ImageURL,
			SourceName: a.Source.Name,
			Tags:       tags,
		})
	}

	c.JSON(http.StatusOK, res)
}

// GetArticle returns the full record, or an empty object when the id is unknown.
func (h *Handler) GetArticle(c *gin.Context) {
	id := c.Param("id")

	article, err := h.store.FindOne(c.Request.Context(), storage.Filter{ID: id})
	if err != nil {
		logger.Error("error fetching article", "error", err, "article_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if article == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	c.JSON(http.StatusOK, article)
}

func (h *Handler) ListTranslations(c *gin.Context) {
	limit := getQueryLimit(c, "limit", defaultTranslationLimit)

	articles, err := h.store.Find(c.Request.Context(), storage.Filter{HasTranslations: true},
		storage.FindOptions{Limit: limit, Sort: storage.SortProcessedDesc})
	if err != nil {
		logger.Error("error listing translations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res := []TranslationEntry{}
	for _, a := range articles {
		for _, t := range a.Translations {
			res = append(res, TranslationEntry{
				ArticleID:    a.ID,
				ArticleTitle: a.Title,
				Lang:         t.Lang,
				Model:        t.Model,
				Prompt:       t.Prompt,
				Type:         t.Type,
				CreatedAt:    t.CreatedAt,
				Meta:         t.Meta,
			})
		}
	}

	c.JSON(http.StatusOK, res)
}

func getQueryLimit(c *gin.Context, name string, defaultValue int) int {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		logger.Warn("invalid query parameter, using default", "param", name, "value", raw, "default", defaultValue)
		return defaultValue
	}

	if limit > maxLimit {
		logger.Warn("query parameter exceeds max, clamping", "param", name, "value", limit, "max", maxLimit)
		return maxLimit
	}

	return limit
}
