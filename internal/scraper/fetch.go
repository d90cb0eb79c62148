package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// ErrFetch marks a failed page download (transport error or non-2xx status).
var ErrFetch = errors.New("page fetch failed")

const maxBodyBytes = 5 << 20

// Page is a downloaded HTML document.
type Page struct {
	URL  string // final URL after redirects
	HTML string
}

// Fetcher downloads article pages with a bounded timeout and a per-host politeness delay.
type Fetcher struct {
	client    *http.Client
	userAgent string
	interval  time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetcher creates a page fetcher. interval <= 0 disables the per-host delay.
func NewFetcher(timeout time.Duration, userAgent string, interval time.Duration) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		interval:  interval,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(f.interval), 1)
		f.limiters[host] = l
	}
	return l
}

// Fetch downloads pageURL. No retries: callers fall back to what they already have.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return Page{}, fmt.Errorf("%w: invalid url %q", ErrFetch, pageURL)
	}

	if f.interval > 0 {
		if err := f.limiter(u.Host).Wait(ctx); err != nil {
			return Page{}, fmt.Errorf("%w: %v", ErrFetch, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Page{}, fmt.Errorf("%w: %s returned %d", ErrFetch, pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}

	final := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return Page{URL: final, HTML: string(body)}, nil
}

// AMPLink returns the absolute href of <link rel="amphtml">, or "" when the page has none.
func AMPLink(html, base string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	href, ok := doc.Find(`link[rel="amphtml"]`).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		b = &url.URL{}
	}
	return resolve(b, href)
}
