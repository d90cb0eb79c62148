package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/nieuwsmetai/internal/news"
)

// FileStore keeps articles in memory and, when a path is set, mirrors them to a JSON file
// after every write.
type FileStore struct {
	filePath string
	mu       sync.RWMutex
	articles map[string]*news.Article
	order    []string // insertion order, keeps Find deterministic on equal timestamps
}

// NewFileStore creates a store; an empty path keeps everything in memory.
func NewFileStore(filePath string) *FileStore {
	return &FileStore{
		filePath: filePath,
		articles: make(map[string]*news.Article),
	}
}

// Load reads the JSON file if it exists.
func (fs *FileStore) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.filePath == "" {
		return nil
	}
	data, err := os.ReadFile(fs.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var items []news.Article
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("unmarshal store file: %w", err)
	}
	for i := range items {
		a := items[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		fs.articles[a.ID] = &a
		fs.order = append(fs.order, a.ID)
	}
	return nil
}

// save must be called with the write lock held.
func (fs *FileStore) save() error {
	if fs.filePath == "" {
		return nil
	}
	items := make([]news.Article, 0, len(fs.order))
	for _, id := range fs.order {
		items = append(items, *fs.articles[id])
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	tmp := fs.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	if err := os.Rename(tmp, fs.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}

func (fs *FileStore) FindOne(ctx context.Context, f Filter) (*news.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	for _, id := range fs.order {
		if a := fs.articles[id]; matches(a, f) {
			c := clone(a)
			return &c, nil
		}
	}
	return nil, nil
}

func (fs *FileStore) Find(ctx context.Context, f Filter, opts FindOptions) ([]news.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs.mu.RLock()
	var out []news.Article
	for _, id := range fs.order {
		if a := fs.articles[id]; matches(a, f) {
			out = append(out, clone(a))
		}
	}
	fs.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch opts.Sort {
		case SortFetchedAsc:
			return a.FetchedAt.Before(b.FetchedAt)
		case SortProcessedDesc:
			return processedAt(a).After(processedAt(b))
		default:
			return a.FetchedAt.After(b.FetchedAt)
		}
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (fs *FileStore) InsertOne(ctx context.Context, a news.Article) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, existing := range fs.articles {
		if sameText(existing.URL, a.URL) {
			return "", fmt.Errorf("insert %s: %w", a.URL, ErrDuplicateURL)
		}
	}

	c := clone(&a)
	c.ID = uuid.NewString()
	fs.articles[c.ID] = &c
	fs.order = append(fs.order, c.ID)

	if err := fs.save(); err != nil {
		return "", err
	}
	return c.ID, nil
}

func (fs *FileStore) UpdateOne(ctx context.Context, id string, u Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	a, ok := fs.articles[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	applyUpdate(a, u)
	return fs.save()
}

func (fs *FileStore) DeleteMany(ctx context.Context, f Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	kept := fs.order[:0]
	deleted := 0
	for _, id := range fs.order {
		if matches(fs.articles[id], f) {
			delete(fs.articles, id)
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	fs.order = kept

	if deleted == 0 {
		return 0, nil
	}
	return deleted, fs.save()
}

func (fs *FileStore) PushTranslation(ctx context.Context, id string, t news.Translation, status news.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	a, ok := fs.articles[id]
	if !ok {
		return fmt.Errorf("push translation %s: %w", id, ErrNotFound)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	a.Translations = append(a.Translations, t)
	now := time.Now().UTC()
	a.ProcessedAt = &now
	if status != "" {
		a.Status = status
	}
	return fs.save()
}

func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.save()
}

func processedAt(a news.Article) time.Time {
	if a.ProcessedAt == nil {
		return time.Time{}
	}
	return *a.ProcessedAt
}

// clone copies an article so callers never share slices with the store.
func clone(a *news.Article) news.Article {
	c := *a
	c.Tags = append([]string(nil), a.Tags...)
	c.Translations = append([]news.Translation(nil), a.Translations...)
	if a.ProcessedAt != nil {
		t := *a.ProcessedAt
		c.ProcessedAt = &t
	}
	return c
}
