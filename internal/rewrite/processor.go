package rewrite

import (
	"context"
	"fmt"
	"time"

	"github.com/deusflow/nieuwsmetai/internal/logger"
	"github.com/deusflow/nieuwsmetai/internal/news"
	"github.com/deusflow/nieuwsmetai/internal/storage"
)

// TranslationTypeEnriched marks translations written by Enrich.
const TranslationTypeEnriched = "enriched"

// Processor moves fetched articles through the rewriter.
type Processor struct {
	store    storage.Store
	rewriter Rewriter
	lang     string
	now      func() time.Time
}

func NewProcessor(store storage.Store, rewriter Rewriter, lang string) *Processor {
	if lang == "" {
		lang = "nl"
	}
	return &Processor{
		store:    store,
		rewriter: rewriter,
		lang:     lang,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProcessOne rewrites the oldest fetched article and marks it ready. It returns false when
// nothing is waiting.
func (p *Processor) ProcessOne(ctx context.Context) (bool, error) {
	pending, err := p.store.Find(ctx, storage.Filter{Status: news.StatusFetched},
		storage.FindOptions{Limit: 1, Sort: storage.SortFetchedAsc})
	if err != nil {
		return false, fmt.Errorf("find fetched article: %w", err)
	}
	if len(pending) == 0 {
		logger.Info("no fetched articles to process")
		return false, nil
	}
	a := pending[0]
	log := logger.With("id", a.ID, "url", a.URL)

	text := a.ContentText
	if text == "" {
		text = a.ContentRaw
	}
	res, err := p.rewriter.Rewrite(ctx, text, p.lang)
	if err != nil {
		return false, fmt.Errorf("rewrite %s: %w", a.ID, err)
	}

	t := news.Translation{
		Lang:      p.lang,
		Text:      res.Text,
		Model:     modelName(res),
		Prompt:    fmt.Sprintf("Vertaal en herschrijf naar %s (automatisch)", p.lang),
		Meta:      res.Meta,
		CreatedAt: p.now(),
	}
	if err := p.store.PushTranslation(ctx, a.ID, t, news.StatusReady); err != nil {
		return false, fmt.Errorf("store translation for %s: %w", a.ID, err)
	}

	log.Info("article processed", "model", t.Model)
	return true, nil
}

// ProcessN processes up to n articles and returns how many were handled.
func (p *Processor) ProcessN(ctx context.Context, n int) (int, error) {
	done := 0
	for done < n {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		ok, err := p.ProcessOne(ctx)
		if err != nil {
			return done, err
		}
		if !ok {
			break
		}
		done++
	}
	return done, nil
}

// EnrichOptions bound the enrichment pass.
type EnrichOptions struct {
	DeleteMaxLen int // articles with at most this many characters are deleted
	TargetMinLen int // articles shorter than this are expanded
	MinWords     int
}

// EnrichResult reports what Enrich did.
type EnrichResult struct {
	Deleted  int
	Enriched int
}

// Enrich deletes very short articles, then expands medium-length ones in place. The expanded
// text replaces content_text and is recorded as an enriched translation.
func (p *Processor) Enrich(ctx context.Context, opts EnrichOptions) (EnrichResult, error) {
	var out EnrichResult

	deleted, err := p.store.DeleteMany(ctx, storage.Filter{ContentShorterThan: opts.DeleteMaxLen + 1})
	if err != nil {
		return out, fmt.Errorf("delete short articles: %w", err)
	}
	out.Deleted = deleted
	logger.Info("short articles deleted", "count", deleted, "max_len", opts.DeleteMaxLen)

	candidates, err := p.store.Find(ctx, storage.Filter{ContentShorterThan: opts.TargetMinLen}, storage.FindOptions{Sort: storage.SortFetchedAsc})
	if err != nil {
		return out, fmt.Errorf("find articles to enrich: %w", err)
	}

	for _, a := range candidates {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if news.TextLen(a.ContentText) <= opts.DeleteMaxLen {
			continue
		}

		res, err := p.rewriter.Expand(ctx, a.ContentText, p.lang, opts.MinWords)
		if err != nil {
			return out, fmt.Errorf("expand %s: %w", a.ID, err)
		}
		text := res.Text
		if text == "" {
			text = a.ContentText
		}

		t := news.Translation{
			Lang:      p.lang,
			Text:      text,
			Model:     modelName(res),
			Prompt:    res.Prompt,
			Meta:      res.Meta,
			Type:      TranslationTypeEnriched,
			CreatedAt: p.now(),
		}
		if err := p.store.PushTranslation(ctx, a.ID, t, ""); err != nil {
			return out, fmt.Errorf("store enrichment for %s: %w", a.ID, err)
		}
		if err := p.store.UpdateOne(ctx, a.ID, storage.Update{ContentText: &text}); err != nil {
			return out, fmt.Errorf("update %s: %w", a.ID, err)
		}
		out.Enriched++
		logger.Debug("article enriched", "id", a.ID, "old_len", news.TextLen(a.ContentText), "new_len", news.TextLen(text))
	}

	logger.Info("enrichment finished", "enriched", out.Enriched)
	return out, nil
}

func modelName(r Result) string {
	if r.Model == "" {
		return ModelMock
	}
	return r.Model
}
