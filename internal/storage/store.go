package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deusflow/nieuwsmetai/internal/news"
)

var (
	// ErrNotFound is returned by UpdateOne and PushTranslation for unknown ids.
	ErrNotFound = errors.New("article not found")
	// ErrDuplicateURL is returned by InsertOne when an article with the same URL exists.
	ErrDuplicateURL = errors.New("article with this url already exists")
)

// Filter selects articles. Zero-valued fields are ignored; set fields are ANDed.
type Filter struct {
	ID                 string
	URL                string
	TitleKey           string
	SourceName         string
	FeedURL            string
	Status             news.Status
	ContentShorterThan int // content_text shorter than N characters (missing content included)
	HasTranslations    bool
}

// Sort orders Find results.
type Sort int

const (
	SortFetchedDesc Sort = iota
	SortFetchedAsc
	SortProcessedDesc
)

// FindOptions bounds and orders Find. Limit <= 0 means no limit.
type FindOptions struct {
	Limit int
	Sort  Sort
}

// Update is a partial update. Nil fields are left untouched.
type Update struct {
	Title       *string
	TitleKey    *string
	ContentRaw  *string
	ContentText *string
	ImageURL    *string
	Tags        []string // nil keeps the stored tags
	Status      *news.Status
	ProcessedAt *time.Time
}

// IsEmpty reports whether the update would change nothing.
func (u Update) IsEmpty() bool {
	return u.Title == nil && u.TitleKey == nil && u.ContentRaw == nil && u.ContentText == nil &&
		u.ImageURL == nil && u.Tags == nil && u.Status == nil && u.ProcessedAt == nil
}

// Store is the article persistence used by the pipeline, the maintenance commands and the API.
type Store interface {
	// FindOne returns the first match or nil when nothing matches.
	FindOne(ctx context.Context, f Filter) (*news.Article, error)
	Find(ctx context.Context, f Filter, opts FindOptions) ([]news.Article, error)
	// InsertOne assigns and returns a new id.
	InsertOne(ctx context.Context, a news.Article) (string, error)
	UpdateOne(ctx context.Context, id string, u Update) error
	DeleteMany(ctx context.Context, f Filter) (int, error)
	// PushTranslation appends a translation, stamps processed_at and, when status is
	// non-empty, moves the article to that status.
	PushTranslation(ctx context.Context, id string, t news.Translation, status news.Status) error
	Close() error
}

// Open picks a store implementation from a DSN:
//
//	""  or "memory"            in-memory FileStore
//	"file:articles.json"       JSON-file backed FileStore
//	"postgres://..."           SQLStore on PostgreSQL
//	"sqlite:news.db"           SQLStore on SQLite (":memory:" allowed)
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "" || dsn == "memory":
		return NewFileStore(""), nil
	case strings.HasPrefix(dsn, "file:"):
		fs := NewFileStore(strings.TrimPrefix(dsn, "file:"))
		if err := fs.Load(); err != nil {
			return nil, err
		}
		return fs, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenSQL(ctx, DialectPostgres, dsn)
	case strings.HasPrefix(dsn, "sqlite:"):
		return OpenSQL(ctx, DialectSQLite, strings.TrimPrefix(dsn, "sqlite:"))
	default:
		return nil, fmt.Errorf("unsupported store dsn %q", dsn)
	}
}

func sameText(a, b string) bool { return a == b && a != "" }

// matches is the in-memory evaluation of a Filter, shared by FileStore and tests.
func matches(a *news.Article, f Filter) bool {
	if f.ID != "" && a.ID != f.ID {
		return false
	}
	if f.URL != "" && !sameText(a.URL, f.URL) {
		return false
	}
	if f.TitleKey != "" && !sameText(a.TitleKey, f.TitleKey) {
		return false
	}
	if f.SourceName != "" && a.Source.Name != f.SourceName {
		return false
	}
	if f.FeedURL != "" && a.Source.FeedURL != f.FeedURL {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.ContentShorterThan > 0 && news.TextLen(a.ContentText) >= f.ContentShorterThan {
		return false
	}
	if f.HasTranslations && len(a.Translations) == 0 {
		return false
	}
	return true
}

func applyUpdate(a *news.Article, u Update) {
	if u.Title != nil {
		a.Title = *u.Title
	}
	if u.TitleKey != nil {
		a.TitleKey = *u.TitleKey
	}
	if u.ContentRaw != nil {
		a.ContentRaw = *u.ContentRaw
	}
	if u.ContentText != nil {
		a.ContentText = *u.ContentText
	}
	if u.ImageURL != nil {
		a.ImageURL = *u.ImageURL
	}
	if u.Tags != nil {
		a.Tags = append([]string(nil), u.Tags...)
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.ProcessedAt != nil {
		t := *u.ProcessedAt
		a.ProcessedAt = &t
	}
}
