package news

import (
	"time"
	"unicode/utf8"
)

// Status marks where an article is in its lifecycle.
type Status string

const (
	StatusFetched Status = "fetched"
	StatusReady   Status = "ready"
)

// Source identifies the feed an article was first ingested from.
type Source struct {
	Name    string `json:"name"`
	FeedURL string `json:"feed_url"`
}

// Translation is one rewrite/translation appended by the processing step.
type Translation struct {
	Lang      string         `json:"lang"`
	Text      string         `json:"text"`
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	Type      string         `json:"type,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Article is the persisted record. ID is assigned by the store.
type Article struct {
	ID           string        `json:"id"`
	URL          string        `json:"url"`
	TitleKey     string        `json:"title_key"`
	Title        string        `json:"title"`
	ContentRaw   string        `json:"content_raw,omitempty"`
	ContentText  string        `json:"content_text"`
	ImageURL     string        `json:"image_url,omitempty"`
	Source       Source        `json:"source"`
	Tags         []string      `json:"tags"`
	Status       Status        `json:"status"`
	FetchedAt    time.Time     `json:"fetched_at"`
	ProcessedAt  *time.Time    `json:"processed_at,omitempty"`
	Translations []Translation `json:"translations,omitempty"`
}

// TextLen is the content length used by every threshold: characters, not bytes.
func TextLen(s string) int {
	return utf8.RuneCountInString(s)
}
