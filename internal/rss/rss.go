package rss

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"gopkg.in/yaml.v3"
)

var (
	// ErrFeedUnreachable marks transport-level failures (timeouts, refused connections, 4xx/5xx).
	ErrFeedUnreachable = errors.New("feed unreachable")
	// ErrFeedMalformed marks documents gofeed could not parse.
	ErrFeedMalformed = errors.New("feed malformed")
)

// FeedConfig describes one polled feed.
type FeedConfig struct {
	URL          string   `yaml:"url"`
	Name         string   `yaml:"name"`
	OnlyFree     bool     `yaml:"only_free"`
	SkipPatterns []string `yaml:"skip_patterns"`
}

// FeedsConfig is YAML config structure
// feeds:
//   - url: https://...
//     name: NOS
//     only_free: true
type FeedsConfig struct {
	Feeds []FeedConfig `yaml:"feeds"`
}

// Enclosure is a feed attachment.
type Enclosure struct {
	URL  string
	Type string
}

// Entry is a parsed feed item, decoupled from gofeed so the pipeline can be fed fixtures.
type Entry struct {
	Link       string
	Links      []string
	Title      string
	Content    string
	Summary    string
	MediaURLs  []string // media:content / media:thumbnail, document order
	ImageURL   string
	Enclosures []Enclosure
	Tags       []string
}

// LoadFeeds reads the feed list from a YAML file. Entries without a URL are dropped.
func LoadFeeds(path string) ([]FeedConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	feeds := make([]FeedConfig, 0, len(cfg.Feeds))
	for _, fc := range cfg.Feeds {
		fc.URL = strings.TrimSpace(fc.URL)
		if fc.URL == "" {
			continue
		}
		if fc.Name == "" {
			fc.Name = fc.URL
		}
		feeds = append(feeds, fc)
	}
	return feeds, nil
}

// Source downloads and parses feeds.
type Source struct {
	parser  *gofeed.Parser
	timeout time.Duration
}

// NewSource creates a gofeed-backed source with a per-request timeout.
func NewSource(timeout time.Duration, userAgent string) *Source {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: timeout}
	return &Source{parser: parser, timeout: timeout}
}

// Fetch downloads one feed and returns its entries.
func (s *Source) Fetch(ctx context.Context, feed FeedConfig) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	parsed, err := s.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, classify(feed.URL, err)
	}
	return EntriesFromFeed(parsed), nil
}

// Parse parses an already downloaded feed document.
func Parse(doc string) ([]Entry, error) {
	parsed, err := gofeed.NewParser().ParseString(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedMalformed, err)
	}
	return EntriesFromFeed(parsed), nil
}

func classify(url string, err error) error {
	var httpErr gofeed.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return fmt.Errorf("%w: %s: HTTP %d", ErrFeedUnreachable, url, httpErr.StatusCode)
	case errors.Is(err, gofeed.ErrFeedTypeNotDetected):
		return fmt.Errorf("%w: %s: %v", ErrFeedMalformed, url, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrFeedUnreachable, url, err)
	}
}

// EntriesFromFeed maps gofeed items to entries.
func EntriesFromFeed(feed *gofeed.Feed) []Entry {
	if feed == nil {
		return nil
	}
	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, FromItem(item))
	}
	return entries
}

// FromItem converts a single gofeed item.
func FromItem(item *gofeed.Item) Entry {
	e := Entry{
		Link:      strings.TrimSpace(item.Link),
		Links:     item.Links,
		Title:     item.Title,
		Content:   item.Content,
		Summary:   item.Description,
		MediaURLs: mediaURLs(item.Extensions),
		Tags:      item.Categories,
	}
	if item.Image != nil {
		e.ImageURL = strings.TrimSpace(item.Image.URL)
	}
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		e.Enclosures = append(e.Enclosures, Enclosure{URL: enc.URL, Type: enc.Type})
	}
	return e
}

// mediaURLs collects Media RSS image references: media:content, then media:thumbnail,
// then the same pair nested inside media:group.
func mediaURLs(exts ext.Extensions) []string {
	media, ok := exts["media"]
	if !ok {
		return nil
	}

	var urls []string
	collect := func(set map[string][]ext.Extension) {
		for _, name := range []string{"content", "thumbnail"} {
			for _, m := range set[name] {
				u := strings.TrimSpace(m.Attrs["url"])
				if u == "" || !isImageMedia(m) {
					continue
				}
				urls = append(urls, u)
			}
		}
	}

	collect(media)
	for _, group := range media["group"] {
		collect(group.Children)
	}
	return urls
}

func isImageMedia(m ext.Extension) bool {
	if medium := strings.ToLower(m.Attrs["medium"]); medium != "" {
		return medium == "image"
	}
	if typ := strings.ToLower(m.Attrs["type"]); typ != "" {
		return strings.HasPrefix(typ, "image/")
	}
	return true
}
