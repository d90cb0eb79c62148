package api

import "time"

type ArticleSummary struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	ImageURL   string   `json:"image_url"`
	SourceName string   `json:"source_name"`
	Tags       []string `json:"tags"`
}

type TranslationEntry struct {
	ArticleID    string         `json:"article_id"`
	ArticleTitle string         `json:"article_title"`
	Lang         string         `json:"lang"`
	Model        string         `json:"model"`
	Prompt       string         `json:"prompt"`
	Type         string         `json:"type,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Meta         map[string]any `json:"meta"`
}
