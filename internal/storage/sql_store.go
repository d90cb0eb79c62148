package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/deusflow/nieuwsmetai/internal/logger"
	"github.com/deusflow/nieuwsmetai/internal/news"
)

// Dialect selects driver, placeholders and the few SQL differences between backends.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var articleColumns = []string{
	"id", "url", "title_key", "title", "content_raw", "content_text", "image_url",
	"source_name", "source_feed_url", "tags", "status", "fetched_at", "processed_at",
}

// SQLStore persists articles in PostgreSQL or SQLite. The url column is UNIQUE so that
// concurrent feed workers cannot insert the same article twice.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

// OpenSQL connects, pings and creates the schema.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	driver := "postgres"
	var placeholder sq.PlaceholderFormat = sq.Dollar
	memory := false
	if dialect == DialectSQLite {
		driver = "sqlite"
		placeholder = sq.Question
		if dsn == "" || dsn == ":memory:" {
			dsn = "file::memory:?cache=shared"
		}
		memory = strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLStore{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logger.Info("article store connected", "dialect", string(dialect))
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	translationID, timestamp := "SERIAL PRIMARY KEY", "TIMESTAMPTZ"
	if s.dialect == DialectSQLite {
		translationID, timestamp = "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id TEXT PRIMARY KEY,
			url TEXT UNIQUE NOT NULL,
			title_key TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			content_raw TEXT NOT NULL DEFAULT '',
			content_text TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			source_name TEXT NOT NULL DEFAULT '',
			source_feed_url TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			fetched_at ` + timestamp + ` NOT NULL,
			processed_at ` + timestamp + ` NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_title_key ON articles(title_key)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_feed_url ON articles(source_feed_url)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_fetched_at ON articles(fetched_at)`,
		`CREATE TABLE IF NOT EXISTS translations (
			id ` + translationID + `,
			article_id TEXT NOT NULL,
			lang TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL DEFAULT '',
			meta TEXT NOT NULL DEFAULT '{}',
			type TEXT NOT NULL DEFAULT '',
			created_at ` + timestamp + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_translations_article ON translations(article_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) lengthFunc() string {
	if s.dialect == DialectPostgres {
		return "char_length"
	}
	return "length"
}

// processedDesc keeps unprocessed rows last. SQLite already orders NULL below any value.
func (s *SQLStore) processedDesc() string {
	if s.dialect == DialectPostgres {
		return "processed_at DESC NULLS LAST"
	}
	return "processed_at DESC"
}

func (s *SQLStore) where(f Filter) sq.And {
	cond := sq.And{}
	if f.ID != "" {
		cond = append(cond, sq.Eq{"id": f.ID})
	}
	if f.URL != "" {
		cond = append(cond, sq.Eq{"url": f.URL})
	}
	if f.TitleKey != "" {
		cond = append(cond, sq.Eq{"title_key": f.TitleKey})
	}
	if f.SourceName != "" {
		cond = append(cond, sq.Eq{"source_name": f.SourceName})
	}
	if f.FeedURL != "" {
		cond = append(cond, sq.Eq{"source_feed_url": f.FeedURL})
	}
	if f.Status != "" {
		cond = append(cond, sq.Eq{"status": string(f.Status)})
	}
	if f.ContentShorterThan > 0 {
		cond = append(cond, sq.Expr(s.lengthFunc()+"(content_text) < ?", f.ContentShorterThan))
	}
	if f.HasTranslations {
		cond = append(cond, sq.Expr("EXISTS (SELECT 1 FROM translations t WHERE t.article_id = articles.id)"))
	}
	return cond
}

func (s *SQLStore) FindOne(ctx context.Context, f Filter) (*news.Article, error) {
	items, err := s.Find(ctx, f, FindOptions{Limit: 1, Sort: SortFetchedAsc})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *SQLStore) Find(ctx context.Context, f Filter, opts FindOptions) ([]news.Article, error) {
	q := s.sb.Select(articleColumns...).From("articles").Where(s.where(f))
	switch opts.Sort {
	case SortFetchedAsc:
		q = q.OrderBy("fetched_at ASC", "id ASC")
	case SortProcessedDesc:
		q = q.OrderBy(s.processedDesc(), "id ASC")
	default:
		q = q.OrderBy("fetched_at DESC", "id ASC")
	}
	if opts.Limit > 0 {
		q = q.Limit(uint64(opts.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find articles: %w", err)
	}
	defer rows.Close()

	var out []news.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}

	if err := s.loadTranslations(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func scanArticle(rows *sql.Rows) (news.Article, error) {
	var (
		a         news.Article
		tags      string
		status    string
		processed sql.NullTime
	)
	err := rows.Scan(&a.ID, &a.URL, &a.TitleKey, &a.Title, &a.ContentRaw, &a.ContentText, &a.ImageURL,
		&a.Source.Name, &a.Source.FeedURL, &tags, &status, &a.FetchedAt, &processed)
	if err != nil {
		return a, fmt.Errorf("scan article: %w", err)
	}
	a.Status = news.Status(status)
	if processed.Valid {
		t := processed.Time
		a.ProcessedAt = &t
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
			return a, fmt.Errorf("decode tags of %s: %w", a.ID, err)
		}
	}
	return a, nil
}

func (s *SQLStore) loadTranslations(ctx context.Context, articles []news.Article) error {
	if len(articles) == 0 {
		return nil
	}
	ids := make([]string, len(articles))
	index := make(map[string]int, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
		index[a.ID] = i
	}

	query, args, err := s.sb.
		Select("article_id", "lang", "text", "model", "prompt", "meta", "type", "created_at").
		From("translations").
		Where(sq.Eq{"article_id": ids}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("build translations query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			articleID string
			meta      string
			t         news.Translation
		)
		if err := rows.Scan(&articleID, &t.Lang, &t.Text, &t.Model, &t.Prompt, &meta, &t.Type, &t.CreatedAt); err != nil {
			return fmt.Errorf("scan translation: %w", err)
		}
		if meta != "" && meta != "{}" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &t.Meta); err != nil {
				logger.Warn("undecodable translation meta", "article", articleID, "error", err)
			}
		}
		i := index[articleID]
		articles[i].Translations = append(articles[i].Translations, t)
	}
	return rows.Err()
}

func (s *SQLStore) InsertOne(ctx context.Context, a news.Article) (string, error) {
	tags, err := json.Marshal(nonNil(a.Tags))
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	a.ID = uuid.NewString()

	var processed any
	if a.ProcessedAt != nil {
		processed = a.ProcessedAt.UTC()
	}

	query, args, err := s.sb.Insert("articles").
		Columns(articleColumns...).
		Values(a.ID, a.URL, a.TitleKey, a.Title, a.ContentRaw, a.ContentText, a.ImageURL,
			a.Source.Name, a.Source.FeedURL, string(tags), string(a.Status), a.FetchedAt.UTC(), processed).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("insert %s: %w", a.URL, ErrDuplicateURL)
		}
		return "", fmt.Errorf("insert article: %w", err)
	}
	return a.ID, nil
}

func (s *SQLStore) UpdateOne(ctx context.Context, id string, u Update) error {
	if u.IsEmpty() {
		return nil
	}

	q := s.sb.Update("articles").Where(sq.Eq{"id": id})
	if u.Title != nil {
		q = q.Set("title", *u.Title)
	}
	if u.TitleKey != nil {
		q = q.Set("title_key", *u.TitleKey)
	}
	if u.ContentRaw != nil {
		q = q.Set("content_raw", *u.ContentRaw)
	}
	if u.ContentText != nil {
		q = q.Set("content_text", *u.ContentText)
	}
	if u.ImageURL != nil {
		q = q.Set("image_url", *u.ImageURL)
	}
	if u.Tags != nil {
		tags, err := json.Marshal(u.Tags)
		if err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}
		q = q.Set("tags", string(tags))
	}
	if u.Status != nil {
		q = q.Set("status", string(*u.Status))
	}
	if u.ProcessedAt != nil {
		q = q.Set("processed_at", u.ProcessedAt.UTC())
	}

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update article %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) DeleteMany(ctx context.Context, f Filter) (int, error) {
	query, args, err := s.sb.Select("id").From("articles").Where(s.where(f)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete selection: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("select articles to delete: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate ids: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	for _, table := range []struct{ name, column string }{{"translations", "article_id"}, {"articles", "id"}} {
		query, args, err := s.sb.Delete(table.name).Where(sq.Eq{table.column: ids}).ToSql()
		if err != nil {
			return 0, fmt.Errorf("build delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("delete from %s: %w", table.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return len(ids), nil
}

func (s *SQLStore) PushTranslation(ctx context.Context, id string, t news.Translation, status news.Status) error {
	meta, err := json.Marshal(t.Meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin push: %w", err)
	}
	defer tx.Rollback()

	upd := s.sb.Update("articles").Set("processed_at", time.Now().UTC()).Where(sq.Eq{"id": id})
	if status != "" {
		upd = upd.Set("status", string(status))
	}
	query, args, err := upd.ToSql()
	if err != nil {
		return fmt.Errorf("build status update: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update article %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("push translation %s: %w", id, ErrNotFound)
	}

	query, args, err = s.sb.Insert("translations").
		Columns("article_id", "lang", "text", "model", "prompt", "meta", "type", "created_at").
		Values(id, t.Lang, t.Text, t.Model, t.Prompt, string(meta), t.Type, t.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build translation insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert translation: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
