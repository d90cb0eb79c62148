package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/nieuwsmetai/internal/logger"
	"github.com/deusflow/nieuwsmetai/internal/metrics"
	"github.com/deusflow/nieuwsmetai/internal/news"
	"github.com/deusflow/nieuwsmetai/internal/premium"
	"github.com/deusflow/nieuwsmetai/internal/rss"
	"github.com/deusflow/nieuwsmetai/internal/scraper"
	"github.com/deusflow/nieuwsmetai/internal/storage"
	"github.com/deusflow/nieuwsmetai/internal/tagging"
)

// DefaultMinContentLen is the minimum number of characters for a new article.
const DefaultMinContentLen = 700

// FeedSource returns the entries of one feed.
type FeedSource interface {
	Fetch(ctx context.Context, feed rss.FeedConfig) ([]rss.Entry, error)
}

// PageFetcher downloads an article page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (scraper.Page, error)
}

// TextExtractor turns page HTML into article text.
type TextExtractor interface {
	ExtractPage(html, pageURL string) scraper.Extraction
}

// Deps wires the adapters the pipeline drives.
type Deps struct {
	Feeds     FeedSource
	Pages     PageFetcher
	Extractor TextExtractor
	Premium   *premium.Filter
	Tagger    *tagging.Tagger
	Store     storage.Store
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Options tune the pipeline.
type Options struct {
	MinContentLen      int
	ScopeTitleBySource bool // title-key dedup only within the same source name
	FeedConcurrency    int
	MaxTags            int
}

// Pipeline ingests feed entries into the article store.
type Pipeline struct {
	feeds     FeedSource
	pages     PageFetcher
	extractor TextExtractor
	premium   *premium.Filter
	tagger    *tagging.Tagger
	store     storage.Store
	metrics   *metrics.Metrics
	now       func() time.Time
	opts      Options
}

// NewPipeline constructs the pipeline, filling defaults for optional deps.
func NewPipeline(deps Deps, opts Options) *Pipeline {
	if opts.MinContentLen <= 0 {
		opts.MinContentLen = DefaultMinContentLen
	}
	if opts.FeedConcurrency <= 0 {
		opts.FeedConcurrency = 1
	}
	if opts.MaxTags <= 0 {
		opts.MaxTags = 1
	}

	p := &Pipeline{
		feeds:     deps.Feeds,
		pages:     deps.Pages,
		extractor: deps.Extractor,
		premium:   deps.Premium,
		tagger:    deps.Tagger,
		store:     deps.Store,
		metrics:   deps.Metrics,
		now:       deps.Now,
		opts:      opts,
	}
	if p.extractor == nil {
		p.extractor = scraper.NewExtractor(scraper.DefaultMinLen)
	}
	if p.premium == nil {
		p.premium = premium.New()
	}
	if p.tagger == nil {
		p.tagger = tagging.New(nil)
	}
	if p.metrics == nil {
		p.metrics = metrics.Global
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	return p
}

// content is one candidate text source: the inline feed text, the primary page or its AMP page.
// raw is the HTML the text was extracted from.
type content struct {
	text  string
	raw   string
	image string
	from  string
}

// ProcessEntry runs one entry through the pipeline. The error is non-nil only for store
// failures; everything else is expressed as an outcome.
func (p *Pipeline) ProcessEntry(ctx context.Context, feed rss.FeedConfig, entry rss.Entry) (Outcome, error) {
	p.metrics.IncrementEntriesProcessed()

	outcome, err := p.processEntry(ctx, feed, entry)
	p.metrics.RecordOutcome(outcome.String())
	return outcome, err
}

func (p *Pipeline) processEntry(ctx context.Context, feed rss.FeedConfig, entry rss.Entry) (Outcome, error) {
	c := news.Normalize(entry)
	log := logger.With("feed", feed.Name, "url", c.URL)

	if c.URL == "" {
		log.Debug("entry skipped", "reason", fmt.Errorf("%w: entry has no url", ErrValidation))
		return OutcomeSkipped, nil
	}

	if p.premium.URLBlocked(c.URL, feed) {
		log.Debug("entry rejected", "outcome", OutcomeRejectedPremiumURL.String())
		return OutcomeRejectedPremiumURL, nil
	}

	best := content{text: c.ContentText, raw: c.ContentRaw, image: c.ImageURL, from: "feed"}
	if news.TextLen(best.text) < p.opts.MinContentLen && p.pages != nil {
		var premiumPage bool
		best, premiumPage = p.fullText(ctx, c.URL, best, log)
		if premiumPage {
			log.Debug("entry rejected", "outcome", OutcomeRejectedPremiumContent.String(), "check", "page")
			return OutcomeRejectedPremiumContent, nil
		}
	}

	if p.premium.ContentIsPremium(feed, c.Title, best.text, entry.Tags) {
		log.Debug("entry rejected", "outcome", OutcomeRejectedPremiumContent.String(), "check", "content")
		return OutcomeRejectedPremiumContent, nil
	}

	existing, err := p.lookup(ctx, c, feed)
	if err != nil {
		return OutcomeSkipped, err
	}

	if existing != nil {
		return p.merge(ctx, existing, c, best, feed, log)
	}

	if n := news.TextLen(best.text); n < p.opts.MinContentLen {
		log.Debug("entry rejected", "outcome", OutcomeRejectedTooShort.String(),
			"reason", fmt.Errorf("%w: %d characters, need %d", ErrValidation, n, p.opts.MinContentLen))
		return OutcomeRejectedTooShort, nil
	}

	article := news.Article{
		URL:         c.URL,
		TitleKey:    c.TitleKey,
		Title:       c.Title,
		ContentRaw:  best.raw,
		ContentText: best.text,
		ImageURL:    best.image,
		Source:      news.Source{Name: feed.Name, FeedURL: feed.URL},
		Tags:        p.tagger.Tag(best.text, c.Title, feed.Name, p.opts.MaxTags),
		Status:      news.StatusFetched,
		FetchedAt:   p.now(),
	}
	id, err := p.store.InsertOne(ctx, article)
	if errors.Is(err, storage.ErrDuplicateURL) {
		// another worker inserted the same url between lookup and insert
		log.Debug("concurrent insert resolved as merge")
		return OutcomeMerged, nil
	}
	if err != nil {
		return OutcomeSkipped, storeErr("insert", err)
	}

	log.Debug("article inserted", "outcome", OutcomeInserted.String(), "id", id, "source", best.from, "tags", article.Tags)
	return OutcomeInserted, nil
}

// fullText fetches the article page (and its AMP variant when still short) and returns the
// strictly longest text. The boolean reports a premium page.
func (p *Pipeline) fullText(ctx context.Context, url string, inline content, log *slog.Logger) (content, bool) {
	best := inline

	page, err := p.pages.Fetch(ctx, url)
	if err != nil {
		p.metrics.IncrementPageFetchFailures()
		log.Debug("page fetch failed, keeping feed text", "error", fmt.Errorf("%w: %v", ErrNetwork, err))
		return best, false
	}
	if p.premium.PageIsPremium(page.HTML) {
		return best, true
	}

	primary := p.extractor.ExtractPage(page.HTML, page.URL)
	if news.TextLen(primary.Text) > news.TextLen(best.text) {
		best = content{text: primary.Text, raw: page.HTML, image: firstNonEmpty(primary.LeadImage, inline.image), from: "page"}
	}
	if news.TextLen(primary.Text) >= p.opts.MinContentLen {
		return best, false
	}

	ampURL := scraper.AMPLink(page.HTML, page.URL)
	if ampURL == "" {
		return best, false
	}
	ampPage, err := p.pages.Fetch(ctx, ampURL)
	if err != nil {
		p.metrics.IncrementPageFetchFailures()
		log.Debug("amp fetch failed", "amp", ampURL, "error", fmt.Errorf("%w: %v", ErrNetwork, err))
		return best, false
	}
	if p.premium.PageIsPremium(ampPage.HTML) {
		return best, true
	}

	amp := p.extractor.ExtractPage(ampPage.HTML, ampPage.URL)
	if news.TextLen(amp.Text) > news.TextLen(best.text) {
		best = content{
			text:  amp.Text,
			raw:   ampPage.HTML,
			image: firstNonEmpty(primary.LeadImage, amp.LeadImage, inline.image),
			from:  "amp",
		}
	}
	return best, false
}

func (p *Pipeline) lookup(ctx context.Context, c news.Candidate, feed rss.FeedConfig) (*news.Article, error) {
	existing, err := p.store.FindOne(ctx, storage.Filter{URL: c.URL})
	if err != nil {
		return nil, storeErr("find by url", err)
	}
	if existing != nil || c.TitleKey == "" {
		return existing, nil
	}

	f := storage.Filter{TitleKey: c.TitleKey}
	if p.opts.ScopeTitleBySource {
		f.SourceName = feed.Name
	}
	existing, err = p.store.FindOne(ctx, f)
	if err != nil {
		return nil, storeErr("find by title key", err)
	}
	return existing, nil
}

// merge replaces stored content only with strictly longer text. Identity and source are kept.
func (p *Pipeline) merge(ctx context.Context, existing *news.Article, c news.Candidate, best content, feed rss.FeedConfig, log *slog.Logger) (Outcome, error) {
	if news.TextLen(best.text) <= news.TextLen(existing.ContentText) {
		log.Debug("existing article kept", "outcome", OutcomeMerged.String(), "id", existing.ID)
		return OutcomeMerged, nil
	}

	title := c.Title
	if title == "" {
		title = existing.Title
	}
	u := storage.Update{
		ContentText: &best.text,
		ContentRaw:  &best.raw,
		Tags:        p.tagger.Tag(best.text, title, feed.Name, p.opts.MaxTags),
	}
	if u.Tags == nil {
		u.Tags = []string{}
	}
	if best.image != "" && existing.ImageURL == "" {
		u.ImageURL = &best.image
	}
	if existing.Title == "" && c.Title != "" {
		u.Title = &c.Title
	}
	if existing.TitleKey == "" && c.TitleKey != "" {
		u.TitleKey = &c.TitleKey
	}

	if err := p.store.UpdateOne(ctx, existing.ID, u); err != nil {
		return OutcomeSkipped, storeErr("update", err)
	}
	log.Debug("article updated with longer content", "outcome", OutcomeMerged.String(), "id", existing.ID,
		"old_len", news.TextLen(existing.ContentText), "new_len", news.TextLen(best.text))
	return OutcomeMerged, nil
}

// RunFeed processes one feed. Feed-level failures are logged and reported in Stats; only a
// store failure or cancellation is returned as an error.
func (p *Pipeline) RunFeed(ctx context.Context, feed rss.FeedConfig) (Stats, error) {
	stats := Stats{Feed: feed.Name}
	start := time.Now()
	defer func() { p.metrics.RecordProcessingTime(time.Since(start)) }()

	entries, err := p.feeds.Fetch(ctx, feed)
	if err != nil {
		kind := ErrNetwork
		if errors.Is(err, rss.ErrFeedMalformed) {
			kind = ErrParse
		}
		stats.FeedError = fmt.Errorf("%w: %v", kind, err)
		p.metrics.IncrementFeedFailures()
		logger.Warn("feed skipped", "feed", feed.Name, "url", feed.URL, "error", stats.FeedError)
		return stats, nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		outcome, err := p.ProcessEntry(ctx, feed, entry)
		stats.add(outcome)
		if err != nil {
			p.metrics.SetError(err.Error())
			return stats, err
		}
	}

	logger.Info("feed processed", "feed", feed.Name, "entries", stats.Entries,
		"inserted", stats.Inserted, "merged", stats.Merged, "too_short", stats.RejectedTooShort,
		"premium", stats.RejectedPremiumURL+stats.RejectedPremiumContent, "skipped", stats.Skipped)
	return stats, nil
}

// RunAll processes feeds with at most FeedConcurrency in flight. Entries within a feed stay
// sequential. A store failure cancels the remaining feeds and is returned.
func (p *Pipeline) RunAll(ctx context.Context, feeds []rss.FeedConfig) ([]Stats, error) {
	results := make([]Stats, len(feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.FeedConcurrency)
	for i, feed := range feeds {
		i, feed := i, feed
		g.Go(func() error {
			stats, err := p.RunFeed(gctx, feed)
			results[i] = stats
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	p.metrics.SetLastRun()
	return results, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
