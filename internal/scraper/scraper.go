package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/deusflow/nieuwsmetai/internal/logger"
)

// DefaultMinLen is the length (in characters) an extraction step must exceed to win.
const DefaultMinLen = 600

// Extraction is the result of running the extractor over one HTML page.
type Extraction struct {
	Text      string
	LeadImage string
	Strategy  string // readability | selector | paragraphs, empty when nothing was found
}

// Extractor turns article HTML into plain text using readability, then container
// selectors, then all paragraphs.
type Extractor struct {
	minLen   int
	readable func(html string, base *url.URL) string
}

// NewExtractor creates an extractor; minLen <= 0 uses DefaultMinLen.
func NewExtractor(minLen int) *Extractor {
	if minLen <= 0 {
		minLen = DefaultMinLen
	}
	return &Extractor{minLen: minLen, readable: readabilityText}
}

// Common containers for article bodies, most specific last-resort ordering.
var contentSelectors = []string{
	"article",
	"main",
	"[itemprop=articleBody]",
	".article-body",
	".article__body",
	".article-content",
	".entry-content",
	".post-content",
	".story-body",
	".content-body",
	"#content",
}

// Extract runs the layered extraction without a page URL.
func (e *Extractor) Extract(html string) Extraction {
	return e.ExtractPage(html, "")
}

// ExtractPage runs the layered extraction. pageURL is only used to resolve relative
// image URLs and may be empty. It never fails: broken markup yields an empty result.
func (e *Extractor) ExtractPage(html, pageURL string) (res Extraction) {
	if strings.TrimSpace(html) == "" {
		return Extraction{}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("extractor recovered from panic", "url", pageURL, "panic", fmt.Sprint(r))
			res = Extraction{}
		}
	}()

	base, _ := url.Parse(pageURL)
	if base == nil {
		base = &url.URL{}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		logger.Debug("html parse failed", "url", pageURL, "error", err)
		return Extraction{}
	}

	res.LeadImage = leadImage(doc, base)

	if text := e.readable(html, base); e.long(text) {
		res.Text, res.Strategy = text, "readability"
		return res
	}

	// the paragraph fallback joins every <p> on the page, chrome included
	paragraphs := paragraphText(doc)

	doc.Find("script, style, noscript, nav, aside, footer, form, iframe, header").Remove()

	for _, selector := range contentSelectors {
		text := selectionText(doc.Find(selector).First())
		if e.long(text) {
			res.Text, res.Strategy = text, "selector"
			return res
		}
	}

	if paragraphs != "" {
		res.Text, res.Strategy = paragraphs, "paragraphs"
	}
	return res
}

func (e *Extractor) long(text string) bool {
	return utf8.RuneCountInString(text) > e.minLen
}

func readabilityText(html string, base *url.URL) string {
	article, err := readability.FromReader(strings.NewReader(html), base)
	if err != nil {
		return ""
	}
	return cleanText(article.TextContent)
}

func selectionText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	var blocks []string
	s.Find("p, h2, h3, li, blockquote").Each(func(i int, b *goquery.Selection) {
		if text := strings.TrimSpace(b.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		return cleanText(s.Text())
	}
	return cleanText(strings.Join(blocks, "\n\n"))
}

// paragraphText concatenates every non-empty <p>, double-newline-joined.
func paragraphText(doc *goquery.Document) string {
	var paragraphs []string
	doc.Find("p").Each(func(i int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	return strings.Join(paragraphs, "\n\n")
}

// leadImage prefers og:image, then twitter:image, then the first <img>.
func leadImage(doc *goquery.Document, base *url.URL) string {
	metaSelectors := []string{
		`meta[property="og:image"]`,
		`meta[name="og:image"]`,
		`meta[name="twitter:image"]`,
		`meta[property="twitter:image"]`,
		`meta[name="twitter:image:src"]`,
	}
	for _, selector := range metaSelectors {
		if content, ok := doc.Find(selector).First().Attr("content"); ok && strings.TrimSpace(content) != "" {
			return resolve(base, content)
		}
	}

	var img string
	doc.Find("img[src]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if src = strings.TrimSpace(src); src == "" || strings.HasPrefix(src, "data:") {
			return true
		}
		img = resolve(base, src)
		return false
	})
	return img
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if base == nil || base.Host == "" {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

// cleanText trims every line, collapses inner whitespace and keeps at most one blank
// line between blocks.
func cleanText(content string) string {
	if content == "" {
		return ""
	}

	lines := strings.Split(content, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
