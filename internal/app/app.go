package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/nieuwsmetai/internal/api"
	"github.com/deusflow/nieuwsmetai/internal/config"
	"github.com/deusflow/nieuwsmetai/internal/ingest"
	"github.com/deusflow/nieuwsmetai/internal/logger"
	"github.com/deusflow/nieuwsmetai/internal/metrics"
	"github.com/deusflow/nieuwsmetai/internal/premium"
	"github.com/deusflow/nieuwsmetai/internal/rewrite"
	"github.com/deusflow/nieuwsmetai/internal/rss"
	"github.com/deusflow/nieuwsmetai/internal/scraper"
	"github.com/deusflow/nieuwsmetai/internal/storage"
	"github.com/deusflow/nieuwsmetai/internal/tagging"
)

// Deps are the adapters the commands run on. Nil fields are built from the config.
type Deps struct {
	Store    storage.Store
	Feeds    ingest.FeedSource
	Pages    ingest.PageFetcher
	Rewriter rewrite.Rewriter
	Tagger   *tagging.Tagger
	Metrics  *metrics.Metrics
}

// App holds everything the CLI commands share.
type App struct {
	cfg       *config.Config
	feeds     []rss.FeedConfig
	store     storage.Store
	pages     ingest.PageFetcher
	extractor *scraper.Extractor
	premium   *premium.Filter
	tagger    *tagging.Tagger
	metrics   *metrics.Metrics
	pipeline  *ingest.Pipeline
	rewriter  rewrite.Rewriter
	closers   []func() error
}

// New loads the feed list and opens the store and adapters named in cfg.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*App, error) {
	a := &App{
		cfg:       cfg,
		extractor: scraper.NewExtractor(cfg.ExtractMinLen),
		premium:   premium.New(),
		metrics:   deps.Metrics,
	}
	if a.metrics == nil {
		a.metrics = metrics.Global
	}

	feeds, err := rss.LoadFeeds(cfg.FeedsConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load feeds: %w", err)
	}
	a.feeds = feeds

	a.tagger = deps.Tagger
	if a.tagger == nil {
		tax, err := tagging.LoadTaxonomy(cfg.TaxonomyPath)
		if err != nil {
			return nil, fmt.Errorf("load taxonomy: %w", err)
		}
		a.tagger = tagging.New(tax)
	}

	a.store = deps.Store
	if a.store == nil {
		store, err := storage.Open(ctx, cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = store
	}
	a.closers = append(a.closers, a.store.Close)

	source := deps.Feeds
	if source == nil {
		source = rss.NewSource(cfg.RequestTimeout, cfg.UserAgent)
	}
	a.pages = deps.Pages
	if a.pages == nil {
		a.pages = scraper.NewFetcher(cfg.RequestTimeout, cfg.UserAgent, cfg.HostRateInterval)
	}

	a.rewriter = deps.Rewriter
	if a.rewriter == nil {
		svc := rewrite.New(ctx, cfg)
		a.rewriter = svc
		a.closers = append(a.closers, svc.Close)
	}

	a.pipeline = ingest.NewPipeline(ingest.Deps{
		Feeds:     source,
		Pages:     a.pages,
		Extractor: a.extractor,
		Premium:   a.premium,
		Tagger:    a.tagger,
		Store:     a.store,
		Metrics:   a.metrics,
	}, ingest.Options{
		MinContentLen:      cfg.MinContentLen,
		ScopeTitleBySource: cfg.ScopeTitleDedupBySource,
		FeedConcurrency:    cfg.FeedConcurrency,
	})

	logger.Info("app initialised", "feeds", len(a.feeds), "store", storeKind(cfg.StoreDSN))
	return a, nil
}

// Close releases the store and the rewriter, in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fetch runs one ingestion pass over every configured feed.
func (a *App) Fetch(ctx context.Context) (ingest.Stats, error) {
	start := time.Now()
	results, err := a.pipeline.RunAll(ctx, a.feeds)
	total := ingest.Total(results)

	for _, s := range results {
		if s.FeedError != nil {
			logger.Warn("feed failed", "feed", s.Feed, "error", s.FeedError)
		}
	}
	logger.Info("fetch finished", "feeds", len(results), "entries", total.Entries,
		"inserted", total.Inserted, "merged", total.Merged, "duration", time.Since(start))
	return total, err
}

// Refresh deletes the stored articles of each feed and ingests it again.
func (a *App) Refresh(ctx context.Context) (deleted int, total ingest.Stats, err error) {
	var results []ingest.Stats
	for _, feed := range a.feeds {
		n, err := a.store.DeleteMany(ctx, storage.Filter{FeedURL: feed.URL})
		if err != nil {
			return deleted, ingest.Total(results), fmt.Errorf("delete articles of %s: %w", feed.URL, err)
		}
		deleted += n
		logger.Info("feed articles deleted", "feed", feed.Name, "count", n)

		stats, err := a.pipeline.RunFeed(ctx, feed)
		results = append(results, stats)
		if err != nil {
			return deleted, ingest.Total(results), err
		}
	}
	a.metrics.SetLastRun()
	total = ingest.Total(results)
	logger.Info("refresh complete", "deleted", deleted, "inserted", total.Inserted)
	return deleted, total, nil
}

// Process rewrites up to n fetched articles.
func (a *App) Process(ctx context.Context, n int) (int, error) {
	return rewrite.NewProcessor(a.store, a.rewriter, a.cfg.RewriteLang).ProcessN(ctx, n)
}

// Enrich removes very short articles and expands medium-length ones.
func (a *App) Enrich(ctx context.Context) (rewrite.EnrichResult, error) {
	return rewrite.NewProcessor(a.store, a.rewriter, a.cfg.RewriteLang).Enrich(ctx, rewrite.EnrichOptions{
		DeleteMaxLen: a.cfg.EnrichDeleteMaxLen,
		TargetMinLen: a.cfg.EnrichTargetMinLen,
		MinWords:     a.cfg.EnrichMinWords,
	})
}

func (a *App) rewriteStats() api.StatsSource {
	if s, ok := a.rewriter.(api.StatsSource); ok {
		return s
	}
	return nil
}

// Serve runs the read API until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           api.NewRouter(api.NewHandler(a.store, a.metrics, a.rewriteStats()), a.cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "addr", a.cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	}
}

func storeKind(dsn string) string {
	for _, prefix := range []string{"postgres", "sqlite", "file"} {
		if strings.HasPrefix(dsn, prefix) {
			return prefix
		}
	}
	return "memory"
}
