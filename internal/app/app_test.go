package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/nieuwsmetai/internal/config"
	"github.com/deusflow/nieuwsmetai/internal/metrics"
	"github.com/deusflow/nieuwsmetai/internal/news"
	"github.com/deusflow/nieuwsmetai/internal/rewrite"
	"github.com/deusflow/nieuwsmetai/internal/rss"
	"github.com/deusflow/nieuwsmetai/internal/scraper"
	"github.com/deusflow/nieuwsmetai/internal/storage"
)

const feedsYAML = `feeds:
  - url: https://feeds.nos.nl/nosnieuwsalgemeen
    name: NOS
  - url: https://www.nu.nl/rss/Algemeen
    name: NU.nl
    only_free: true
`

var weatherText = strings.TrimSpace(strings.Repeat("Het KNMI waarschuwt voor zware storm en harde regen in het hele land. ", 11))

type staticFeeds map[string][]rss.Entry

func (s staticFeeds) Fetch(_ context.Context, feed rss.FeedConfig) ([]rss.Entry, error) {
	return s[feed.URL], nil
}

type pageMap map[string]string

func (p pageMap) Fetch(_ context.Context, url string) (scraper.Page, error) {
	html, ok := p[url]
	if !ok {
		return scraper.Page{}, fmt.Errorf("%w: %s returned 404", scraper.ErrFetch, url)
	}
	return scraper.Page{URL: url, HTML: html}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	if err := os.WriteFile(path, []byte(feedsYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return &config.Config{
		FeedsConfigPath:    path,
		StoreDSN:           "memory",
		MinContentLen:      700,
		ExtractMinLen:      600,
		RequestTimeout:     time.Second,
		FeedConcurrency:    2,
		RewriteLang:        "nl",
		BackfillMinLen:     1000,
		EnrichDeleteMaxLen: 500,
		EnrichTargetMinLen: 1200,
		EnrichMinWords:     350,
	}
}

func newTestApp(t *testing.T, feeds staticFeeds, pages pageMap) (*App, storage.Store) {
	t.Helper()
	store := storage.NewFileStore("")
	a, err := New(context.Background(), testConfig(t), Deps{
		Store:    store,
		Feeds:    feeds,
		Pages:    pages,
		Rewriter: rewrite.Mock{},
		Metrics:  metrics.New(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, store
}

func all(t *testing.T, s storage.Store) []news.Article {
	t.Helper()
	out, err := s.Find(context.Background(), storage.Filter{}, storage.FindOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestFetchAndProcess(t *testing.T) {
	feeds := staticFeeds{
		"https://feeds.nos.nl/nosnieuwsalgemeen": {
			{Link: "https://nos.nl/a", Title: "Stormwaarschuwing voor heel het land", Summary: "<p>" + weatherText + "</p>"},
		},
		"https://www.nu.nl/rss/Algemeen": {
			{Link: "https://www.nu.nl/premium/b", Title: "Achter de schermen", Summary: "<p>" + weatherText + "</p>"},
		},
	}
	a, store := newTestApp(t, feeds, pageMap{})
	ctx := context.Background()

	total, err := a.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if total.Inserted != 1 || total.RejectedPremiumURL != 1 {
		t.Fatalf("unexpected totals %+v", total)
	}

	n, err := a.Process(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("Process = %d, %v", n, err)
	}
	got := all(t, store)
	if got[0].Status != news.StatusReady || len(got[0].Translations) != 1 {
		t.Fatalf("article not processed: %+v", got[0])
	}
}

func TestRefreshReplacesFeedArticles(t *testing.T) {
	feedURL := "https://feeds.nos.nl/nosnieuwsalgemeen"
	feeds := staticFeeds{feedURL: {{Link: "https://nos.nl/new", Title: "Nieuwe storm", Summary: weatherText}}}
	a, store := newTestApp(t, feeds, pageMap{})
	ctx := context.Background()

	_, err := store.InsertOne(ctx, news.Article{
		URL:         "https://nos.nl/old",
		ContentText: weatherText,
		Source:      news.Source{Name: "NOS", FeedURL: feedURL},
	})
	if err != nil {
		t.Fatal(err)
	}

	deleted, total, err := a.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 || total.Inserted != 1 {
		t.Fatalf("deleted=%d total=%+v", deleted, total)
	}
	got := all(t, store)
	if len(got) != 1 || got[0].URL != "https://nos.nl/new" {
		t.Fatalf("unexpected articles after refresh: %+v", got)
	}
}

func TestPrune(t *testing.T) {
	a, store := newTestApp(t, staticFeeds{}, pageMap{})
	ctx := context.Background()
	store.InsertOne(ctx, news.Article{URL: "https://ex.com/empty"})
	store.InsertOne(ctx, news.Article{URL: "https://ex.com/short", ContentText: strings.Repeat("a", 699)})
	store.InsertOne(ctx, news.Article{URL: "https://ex.com/ok", ContentText: strings.Repeat("a", 700)})

	n, err := a.Prune(ctx, 700)
	if err != nil || n != 2 {
		t.Fatalf("Prune = %d, %v", n, err)
	}
	if len(all(t, store)) != 1 {
		t.Fatal("only the 700 character article should remain")
	}
}

func TestBackfillTags(t *testing.T) {
	a, store := newTestApp(t, staticFeeds{}, pageMap{})
	ctx := context.Background()
	store.InsertOne(ctx, news.Article{URL: "https://ex.com/w", Title: "Storm", ContentText: weatherText, Tags: []string{"Oud", "Twee"}})

	n, err := a.BackfillTags(ctx)
	if err != nil || n != 1 {
		t.Fatalf("BackfillTags = %d, %v", n, err)
	}
	got := all(t, store)[0]
	if len(got.Tags) != 1 || got.Tags[0] != "Weer" {
		t.Fatalf("Tags = %v", got.Tags)
	}
}

func TestBackfillFullText(t *testing.T) {
	long := strings.Repeat("De storm raasde urenlang over het land en veroorzaakte veel schade. ", 25)
	pages := pageMap{
		"https://ex.com/free": `<html><head><meta property="og:image" content="https://ex.com/free.jpg"></head>
<body><article><p>` + long + `</p></article></body></html>`,
		"https://ex.com/paid": `<html><body><div class="paywall"><p>` + long + `</p></div></body></html>`,
	}
	a, store := newTestApp(t, staticFeeds{}, pages)
	ctx := context.Background()

	free, _ := store.InsertOne(ctx, news.Article{URL: "https://ex.com/free", ContentText: "Korte samenvatting."})
	paid, _ := store.InsertOne(ctx, news.Article{URL: "https://ex.com/paid", ContentText: "Korte samenvatting."})
	store.InsertOne(ctx, news.Article{URL: "https://ex.com/missing", ContentText: "Korte samenvatting."})

	n, err := a.BackfillFullText(ctx)
	if err != nil || n != 1 {
		t.Fatalf("BackfillFullText = %d, %v", n, err)
	}

	got, _ := store.FindOne(ctx, storage.Filter{ID: free})
	if news.TextLen(got.ContentText) < 1000 || got.ImageURL != "https://ex.com/free.jpg" {
		t.Errorf("free article not backfilled: len=%d image=%q", news.TextLen(got.ContentText), got.ImageURL)
	}
	untouched, _ := store.FindOne(ctx, storage.Filter{ID: paid})
	if untouched.ContentText != "Korte samenvatting." {
		t.Errorf("premium page must not be used")
	}
}

func TestEnrich(t *testing.T) {
	a, store := newTestApp(t, staticFeeds{}, pageMap{})
	ctx := context.Background()
	store.InsertOne(ctx, news.Article{URL: "https://ex.com/tiny", ContentText: strings.Repeat("a", 400)})
	store.InsertOne(ctx, news.Article{URL: "https://ex.com/mid", ContentText: strings.Repeat("a", 900)})

	res, err := a.Enrich(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 1 || res.Enriched != 1 {
		t.Fatalf("Enrich = %+v", res)
	}
}

func TestNewFailsOnMissingFeeds(t *testing.T) {
	cfg := testConfig(t)
	cfg.FeedsConfigPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := New(context.Background(), cfg, Deps{Store: storage.NewFileStore("")}); err == nil {
		t.Fatal("expected an error for a missing feeds file")
	}
}
