package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deusflow/nieuwsmetai/internal/metrics"
	"github.com/deusflow/nieuwsmetai/internal/news"
	"github.com/deusflow/nieuwsmetai/internal/rss"
	"github.com/deusflow/nieuwsmetai/internal/scraper"
	"github.com/deusflow/nieuwsmetai/internal/storage"
)

// weatherText is 769 characters of weather news that only scores for Weer.
var weatherText = strings.TrimSpace(strings.Repeat("Het KNMI waarschuwt voor zware storm en harde regen in het hele land. ", 11))

type staticFeeds struct {
	entries map[string][]rss.Entry
	err     error
}

func (s *staticFeeds) Fetch(_ context.Context, feed rss.FeedConfig) ([]rss.Entry, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.entries[feed.URL], nil
}

type fakePages struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *fakePages) Fetch(_ context.Context, url string) (scraper.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	html, ok := f.pages[url]
	if !ok {
		return scraper.Page{}, fmt.Errorf("%w: %s returned 404", scraper.ErrFetch, url)
	}
	return scraper.Page{URL: url, HTML: html}, nil
}

type failingStore struct {
	storage.Store
}

func (failingStore) FindOne(context.Context, storage.Filter) (*news.Article, error) {
	return nil, errors.New("connection refused")
}

var nosFeed = rss.FeedConfig{URL: "https://feeds.nos.nl/algemeen", Name: "NOS"}

func newTestPipeline(store storage.Store, pages *fakePages, opts Options) *Pipeline {
	if pages == nil {
		pages = &fakePages{}
	}
	return NewPipeline(Deps{
		Feeds:   &staticFeeds{},
		Pages:   pages,
		Store:   store,
		Metrics: metrics.New(),
	}, opts)
}

func textOfLen(n int) string {
	s := strings.Repeat("wind ", n/5+2)[:n-1]
	return s + "."
}

func summaryEntry(url, title, text string) rss.Entry {
	return rss.Entry{Link: url, Title: title, Summary: "<p>" + text + "</p>"}
}

func count(t *testing.T, s storage.Store) int {
	t.Helper()
	all, err := s.Find(context.Background(), storage.Filter{}, storage.FindOptions{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	return len(all)
}

func TestWeatherEntryInserted(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore("")
	pages := &fakePages{}
	p := newTestPipeline(store, pages, Options{})

	entry := summaryEntry("https://ex.com/a", "Stormwaarschuwing voor heel het land", weatherText)
	outcome, err := p.ProcessEntry(ctx, nosFeed, entry)
	if err != nil {
		t.Fatalf("ProcessEntry returned error: %v", err)
	}
	if outcome != OutcomeInserted {
		t.Fatalf("outcome = %v, want inserted", outcome)
	}
	if len(pages.calls) != 0 {
		t.Errorf("no page fetch expected for long inline text, got %v", pages.calls)
	}

	got, _ := store.FindOne(ctx, storage.Filter{URL: "https://ex.com/a"})
	if got == nil {
		t.Fatal("article not stored")
	}
	if len(got.Tags) != 1 || got.Tags[0] != "Weer" {
		t.Errorf("Tags = %v, want [Weer]", got.Tags)
	}
	if got.Status != news.StatusFetched {
		t.Errorf("Status = %q", got.Status)
	}
	if got.TitleKey != "stormwaarschuwing voor heel het land" || got.Source.Name != "NOS" {
		t.Errorf("unexpected article: %+v", got)
	}
}

func TestAMPFallbackUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore("")
	ampText := textOfLen(1500)
	pages := &fakePages{pages: map[string]string{
		"https://ex.com/a": `<html><head><title>Storm</title>
<link rel="amphtml" href="/amp/a">
<meta property="og:image" content="https://ex.com/primary.jpg"></head>
<body><p>Korte inleiding.</p></body></html>`,
		"https://ex.com/amp/a": `<html><head><title>Storm</title>
<meta property="og:image" content="https://ex.com/amp.jpg"></head>
<body><article><p>` + ampText + `</p></article></body></html>`,
	}}
	p := newTestPipeline(store, pages, Options{})

	first := summaryEntry("https://ex.com/a", "Stormwaarschuwing voor heel het land", weatherText)
	if outcome, err := p.ProcessEntry(ctx, nosFeed, first); err != nil || outcome != OutcomeInserted {
		t.Fatalf("first poll: %v, %v", outcome, err)
	}
	before, _ := store.FindOne(ctx, storage.Filter{URL: "https://ex.com/a"})

	second := summaryEntry("https://ex.com/a", "Stormwaarschuwing voor heel het land", "Korte teaser.")
	outcome, err := p.ProcessEntry(ctx, nosFeed, second)
	if err != nil || outcome != OutcomeMerged {
		t.Fatalf("second poll: %v, %v", outcome, err)
	}
	if len(pages.calls) != 2 || pages.calls[1] != "https://ex.com/amp/a" {
		t.Fatalf("expected primary then AMP fetch, got %v", pages.calls)
	}

	after, _ := store.FindOne(ctx, storage.Filter{URL: "https://ex.com/a"})
	if after.ID != before.ID {
		t.Errorf("id changed: %s -> %s", before.ID, after.ID)
	}
	if n := news.TextLen(after.ContentText); n < 1500 {
		t.Errorf("content length = %d, want the 1500 character amp text", n)
	}
	if after.ImageURL != "https://ex.com/primary.jpg" {
		t.Errorf("ImageURL = %q, want the primary page image", after.ImageURL)
	}
	if after.ContentRaw != pages.pages["https://ex.com/amp/a"] {
		t.Errorf("ContentRaw = %q, want the amp page html", after.ContentRaw)
	}
	if count(t, store) != 1 {
		t.Errorf("expected a single stored article")
	}
}

func TestPageTextStoresPageHTML(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore("")
	pageHTML := `<html><head><title>Storm</title></head><body><article><p>` + textOfLen(1500) + `</p></article></body></html>`
	pages := &fakePages{pages: map[string]string{"https://ex.com/a": pageHTML}}
	p := newTestPipeline(store, pages, Options{})

	o, err := p.ProcessEntry(ctx, nosFeed, summaryEntry("https://ex.com/a", "Storm", "Korte teaser."))
	if err != nil || o != OutcomeInserted {
		t.Fatalf("outcome = %v, %v", o, err)
	}
	got, _ := store.FindOne(ctx, storage.Filter{URL: "https://ex.com/a"})
	if n := news.TextLen(got.ContentText); n < 1500 {
		t.Fatalf("content length = %d, want the page text", n)
	}
	if got.ContentRaw != pageHTML {
		t.Errorf("ContentRaw = %q, want the fetched page html", got.ContentRaw)
	}
}

func TestIdempotentRerun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore("")
	feeds := &staticFeeds{entries: map[string][]rss.Entry{nosFeed.URL: {
		summaryEntry("https://ex.com/a", "Storm op komst", weatherText),
		summaryEntry("https://ex.com/b", "Regen en wind", weatherText+" Extra."),
		summaryEntry("https://ex.com/c", "Kort", "te kort"),
	}}}
	p := NewPipeline(Deps{Feeds: feeds, Pages: &fakePages{}, Store: store, Metrics: metrics.New()}, Options{})

	first, err := p.RunFeed(ctx, nosFeed)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Inserted != 2 || first.RejectedTooShort != 1 {
		t.Fatalf("first run stats: %+v", first)
	}

	second, err := p.RunFeed(ctx, nosFeed)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Inserted != 0 || second.Merged != 2 {
		t.Fatalf("second run stats: %+v", second)
	}
	if count(t, store) != 2 {
		t.Fatalf("expected 2 articles after rerun")
	}
}

func TestContentNeverShrinks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore("")
	p := newTestPipeline(store, nil, Options{})

	long := textOfLen(900)
	if _, err := p.ProcessEntry(ctx, nosFeed, summaryEntry("https://ex.com/a", "Wind", long)); err != nil {
		t.Fatal(err)
	}
	outcome, err := p.ProcessEntry(ctx, nosFeed, summaryEntry("https://ex.com/a", "Wind", textOfLen(750)))
	if err != nil || outcome != OutcomeMerged {
		t.Fatalf("outcome = %v, %v", outcome, err)
	}
	got, _ := store.FindOne(ctx, storage.Filter{URL: "https://ex.com/a"})
	if news.TextLen(got.ContentText) != 900 {
		t.Errorf("content shrank to %d", news.TextLen(got.ContentText))
	}
}

func TestDedupByURLAndTitleKey(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore("")
	p := newTestPipeline(store, nil, Options{})

	if o, _ := p.ProcessEntry(ctx, nosFeed, summaryEntry("https://ex.com/a", "Eerste titel", weatherText)); o != OutcomeInserted {
		t.Fatalf("first = %v", o)
	}
	if o, _ := p.ProcessEntry(ctx, nosFeed, summaryEntry("https://ex.com/a", "Andere titel", weatherText)); o != OutcomeMerged {
		t.Fatalf("same url = %v, want merged", o)
	}
	if o, _ := p.ProcessEntry(ctx, nosFeed, summaryEntry("https://ex.com/other", "  EERSTE   titel ", weatherText)); o != OutcomeMerged {
		t.Fatalf("same title key = %v, want merged", o)
	}
	if count(t, store) != 1 {
		t.Fatalf("expected exactly one stored article")
	}
}

func TestEmptyTitleNeverMatches(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore("")
	p := newTestPipeline(store, nil, Options{})

	for _, url := range []string{"https://ex.com/1", "https://ex.com/2"} {
		if o, err := p.ProcessEntry(ctx, nosFeed, summaryEntry(url, "", weatherText)); err != nil || o != OutcomeInserted {
			t.Fatalf("%s: %v, %v", url, o, err)
		}
	}
	if count(t, store) != 2 {
		t.Fatal("empty title keys must not dedup")
	}
}

func TestTitleDedupScopedBySource(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore("")
	p := newTestPipeline(store, nil, Options{ScopeTitleBySource: true})

	hln := rss.FeedConfig{URL: "https://www.hln.be/rss.xml", Name: "HLN"}
	if o, _ := p.ProcessEntry(ctx, nosFeed, summaryEntry("https://ex.com/a", "Storm", weatherText)); o != OutcomeInserted {
		t.Fatalf("first = %v", o)
	}
	if o, _ := p.ProcessEntry(ctx, hln, summaryEntry("https://hln.be/a", "Storm", weatherText)); o != OutcomeInserted {
		t.Fatalf("other source with same title = %v, want inserted", o)
	}
}

func TestMinimumLength(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore("")
	p := newTestPipeline(store, nil, Options{})

	if o, _ := p.ProcessEntry(ctx, nosFeed, summaryEntry("https://ex.com/699", "a", textOfLen(699))); o != OutcomeRejectedTooShort {
		t.Fatalf("699 chars = %v, want rejected-too-short", o)
	}
	if o, _ := p.ProcessEntry(ctx, nosFeed, summaryEntry("https://ex.com/700", "b", textOfLen(700))); o != OutcomeInserted {
		t.Fatalf("700 chars = %v, want inserted", o)
	}

	// an existing short record is merged and kept as is
	_, err := store.InsertOne(ctx, news.Article{URL: "https://ex.com/old", ContentText: textOfLen(699), Status: news.StatusFetched})
	if err != nil {
		t.Fatal(err)
	}
	if o, _ := p.ProcessEntry(ctx, nosFeed, summaryEntry("https://ex.com/old", "c", textOfLen(699))); o != OutcomeMerged {
		t.Fatalf("existing short record = %v, want merged", o)
	}
	if count(t, store) != 2 {
		t.Fatalf("unexpected article count")
	}
}

func TestPremiumURLShortCircuit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore("")
	pages := &fakePages{}
	p := newTestPipeline(store, pages, Options{})

	feed := rss.FeedConfig{URL: "https://ex.com/rss", Name: "Ex", OnlyFree: true}
	o, err := p.ProcessEntry(ctx, feed, summaryEntry("https://ex.com/premium/a", "Storm", textOfLen(3000)))
	if err != nil || o != OutcomeRejectedPremiumURL {
		t.Fatalf("outcome = %v, %v", o, err)
	}
	if len(pages.calls) != 0 || count(t, store) != 0 {
		t.Fatal("premium url must not reach fetch or store")
	}
}

func TestPremiumPageAndContent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore("")
	pages := &fakePages{pages: map[string]string{
		"https://ex.com/a": `<html><body><div class="paywall"><p>` + textOfLen(1200) + `</p></div></body></html>`,
	}}
	p := newTestPipeline(store, pages, Options{})

	if o, _ := p.ProcessEntry(ctx, nosFeed, summaryEntry("https://ex.com/a", "Storm", "kort")); o != OutcomeRejectedPremiumContent {
		t.Fatalf("paywalled page = %v", o)
	}

	free := rss.FeedConfig{URL: "https://ex.com/rss", Name: "Ex", OnlyFree: true}
	o, _ := p.ProcessEntry(ctx, free, summaryEntry("https://ex.com/b", "Interview", weatherText+" Dit is een betaalartikel."))
	if o != OutcomeRejectedPremiumContent {
		t.Fatalf("premium content = %v", o)
	}
	if count(t, store) != 0 {
		t.Fatal("premium entries must not be stored")
	}
}

func TestPageFetchFailureFallsBackToInline(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore("")
	p := newTestPipeline(store, &fakePages{}, Options{})

	o, err := p.ProcessEntry(ctx, nosFeed, summaryEntry("https://ex.com/a", "Storm", "korte tekst"))
	if err != nil || o != OutcomeRejectedTooShort {
		t.Fatalf("outcome = %v, %v", o, err)
	}
}

func TestSlowPageFallsBackToInline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte("<html><body><p>" + textOfLen(1500) + "</p></body></html>"))
	}))
	defer srv.Close()

	ctx := context.Background()
	store := storage.NewFileStore("")
	p := NewPipeline(Deps{
		Feeds:   &staticFeeds{},
		Pages:   scraper.NewFetcher(100*time.Millisecond, "nieuws-test", 0),
		Store:   store,
		Metrics: metrics.New(),
	}, Options{})

	url := srv.URL + "/artikel"
	if _, err := store.InsertOne(ctx, news.Article{URL: url, ContentText: "kort", Status: news.StatusFetched}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	o, err := p.ProcessEntry(ctx, nosFeed, summaryEntry(url, "Storm", textOfLen(300)))
	if err != nil || o != OutcomeMerged {
		t.Fatalf("outcome = %v, %v", o, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("entry took %v, want the page fetch bounded by the timeout", elapsed)
	}
	got, _ := store.FindOne(ctx, storage.Filter{URL: url})
	if n := news.TextLen(got.ContentText); n != 300 {
		t.Fatalf("content length = %d, want the 300 character feed text", n)
	}
}

func TestMissingURLSkipped(t *testing.T) {
	p := newTestPipeline(storage.NewFileStore(""), nil, Options{})
	o, err := p.ProcessEntry(context.Background(), nosFeed, rss.Entry{Title: "geen link", Summary: weatherText})
	if err != nil || o != OutcomeSkipped {
		t.Fatalf("outcome = %v, %v", o, err)
	}
}

func TestStoreFailureStopsFeed(t *testing.T) {
	feeds := &staticFeeds{entries: map[string][]rss.Entry{nosFeed.URL: {
		summaryEntry("https://ex.com/a", "a", weatherText),
		summaryEntry("https://ex.com/b", "b", weatherText),
	}}}
	p := NewPipeline(Deps{Feeds: feeds, Store: failingStore{}, Metrics: metrics.New()}, Options{})

	stats, err := p.RunFeed(context.Background(), nosFeed)
	if !IsStoreError(err) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if stats.Entries != 1 {
		t.Errorf("processing must stop at the failing entry, processed %d", stats.Entries)
	}
}

func TestFeedFailureIsNotFatal(t *testing.T) {
	feeds := &staticFeeds{err: fmt.Errorf("%w: timeout", rss.ErrFeedUnreachable)}
	p := NewPipeline(Deps{Feeds: feeds, Store: storage.NewFileStore(""), Metrics: metrics.New()}, Options{})

	stats, err := p.RunFeed(context.Background(), nosFeed)
	if err != nil {
		t.Fatalf("feed failure must not be returned: %v", err)
	}
	if !errors.Is(stats.FeedError, ErrNetwork) || stats.Entries != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunFeedStopsOnCancel(t *testing.T) {
	feeds := &staticFeeds{entries: map[string][]rss.Entry{nosFeed.URL: {
		summaryEntry("https://ex.com/a", "a", weatherText),
	}}}
	p := NewPipeline(Deps{Feeds: feeds, Store: storage.NewFileStore(""), Metrics: metrics.New()}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := p.RunFeed(ctx, nosFeed)
	if !errors.Is(err, context.Canceled) || stats.Entries != 0 {
		t.Fatalf("expected cancellation before the first entry, got %v %+v", err, stats)
	}
}

func TestRunAll(t *testing.T) {
	hln := rss.FeedConfig{URL: "https://www.hln.be/rss.xml", Name: "HLN"}
	feeds := &staticFeeds{entries: map[string][]rss.Entry{
		nosFeed.URL: {summaryEntry("https://nos.nl/a", "Storm in het noorden", weatherText)},
		hln.URL:     {summaryEntry("https://hln.be/a", "Storm aan de kust", weatherText)},
	}}
	store := storage.NewFileStore("")
	m := metrics.New()
	p := NewPipeline(Deps{
		Feeds:   feeds,
		Store:   store,
		Metrics: m,
		Now:     func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) },
	}, Options{FeedConcurrency: 2})

	results, err := p.RunAll(context.Background(), []rss.FeedConfig{nosFeed, hln})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(results) != 2 || results[0].Feed != "NOS" || results[1].Feed != "HLN" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if total := Total(results); total.Inserted != 2 {
		t.Fatalf("total inserted = %d", total.Inserted)
	}
	if m.Outcome("inserted") != 2 || !m.Healthy() {
		t.Errorf("metrics not recorded: %v", m.GetStats())
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeRejectedPremiumURL.String() != "rejected-premium-url" || Outcome(99).String() != "unknown" {
		t.Fatal("unexpected outcome names")
	}
}
