package premium

import (
	"strings"

	"github.com/deusflow/nieuwsmetai/internal/rss"
)

// DefaultSkipPatterns are used for only_free feeds that configure no patterns of their own.
var DefaultSkipPatterns = []string{
	"/premium",
	"/plus/",
	"/abonnement",
	"/abonnee",
	"/subscriber",
	"/paywall",
	"/betaal",
}

// pageKeywords are searched in the raw markup of every fetched page.
var pageKeywords = []string{"paywall", "subscribe", "abonnee", "premium"}

// contentKeywords are searched in title, text and feed tags of only_free feeds.
var contentKeywords = []string{
	"premium",
	"plus-artikel",
	"abonnee",
	"alleen voor abonnees",
	"subscriber",
	"betaalartikel",
}

// Filter holds the keyword lists. It is immutable after construction and safe to share.
type Filter struct {
	defaultPatterns []string
	pageWords       []string
	contentWords    []string
}

// New returns a filter with the built-in keyword lists.
func New() *Filter {
	return &Filter{
		defaultPatterns: DefaultSkipPatterns,
		pageWords:       pageKeywords,
		contentWords:    contentKeywords,
	}
}

// URLBlocked reports whether an entry URL matches a skip pattern. Only only_free feeds block.
func (f *Filter) URLBlocked(url string, feed rss.FeedConfig) bool {
	if !feed.OnlyFree || url == "" {
		return false
	}
	patterns := feed.SkipPatterns
	if len(patterns) == 0 {
		patterns = f.defaultPatterns
	}
	return containsAny(strings.ToLower(url), patterns)
}

// PageIsPremium is the coarse raw-markup check. Free articles that merely link to a
// subscription page are rejected too.
func (f *Filter) PageIsPremium(html string) bool {
	if html == "" {
		return false
	}
	return containsAny(strings.ToLower(html), f.pageWords)
}

// ContentIsPremium checks title, extracted text and feed tags of only_free feeds.
func (f *Filter) ContentIsPremium(feed rss.FeedConfig, title, text string, tags []string) bool {
	if !feed.OnlyFree {
		return false
	}
	hay := strings.ToLower(title + " " + text + " " + strings.Join(tags, " "))
	return containsAny(hay, f.contentWords)
}

func containsAny(hay string, needles []string) bool {
	for _, n := range needles {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" && strings.Contains(hay, n) {
			return true
		}
	}
	return false
}
