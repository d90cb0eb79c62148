package news

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/deusflow/nieuwsmetai/internal/rss"
)

// Candidate is a feed entry turned into the shape of an article, before any page fetch.
type Candidate struct {
	URL         string
	Title       string
	TitleKey    string
	ContentRaw  string
	ContentText string
	ImageURL    string
	Tags        []string
}

// Normalize derives a candidate from a feed entry. Only the inline feed content is used.
func Normalize(entry rss.Entry) Candidate {
	c := Candidate{
		URL:      primaryLink(entry),
		Title:    strings.TrimSpace(entry.Title),
		TitleKey: TitleKey(entry.Title),
		Tags:     entry.Tags,
	}

	raw := entry.Content
	if strings.TrimSpace(raw) == "" {
		raw = entry.Summary
	}
	c.ContentRaw = raw
	c.ContentText = HTMLToText(raw)
	c.ImageURL = feedImage(entry, raw)
	return c
}

func primaryLink(entry rss.Entry) string {
	if link := strings.TrimSpace(entry.Link); link != "" {
		return link
	}
	for _, l := range entry.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}

// TitleKey lowercases a title and collapses its whitespace. An empty title yields "".
func TitleKey(title string) string {
	t := strings.ToLower(norm.NFC.String(title))
	return strings.Join(strings.Fields(t), " ")
}

// feedImage picks media:* first, then the item image, then image enclosures, then inline <img>.
func feedImage(entry rss.Entry, inlineHTML string) string {
	for _, u := range entry.MediaURLs {
		if u != "" {
			return u
		}
	}
	if entry.ImageURL != "" {
		return entry.ImageURL
	}
	for _, enc := range entry.Enclosures {
		if strings.HasPrefix(strings.ToLower(enc.Type), "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return FirstImage(inlineHTML)
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "section": true, "article": true, "tr": true, "figure": true,
	"figcaption": true, "hr": true, "pre": true, "table": true,
}

// HTMLToText is the cheap tokenizer pass used for inline feed content.
// Page extraction goes through scraper.Extractor instead.
func HTMLToText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a tokenizer error: keep whatever text was collected
			return normalizeWhitespace(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if tt == html.StartTagToken {
					skip++
				}
				continue
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if skip > 0 {
					skip--
				}
				continue
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		}
	}
}

// FirstImage returns the src of the first <img> in an HTML fragment.
func FirstImage(s string) string {
	if !strings.Contains(s, "<img") && !strings.Contains(s, "<IMG") {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "src" && strings.TrimSpace(string(val)) != "" {
					return strings.TrimSpace(string(val))
				}
				if !more {
					break
				}
			}
		}
	}
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
