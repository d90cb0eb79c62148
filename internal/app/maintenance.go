package app

import (
	"context"
	"fmt"

	"github.com/deusflow/nieuwsmetai/internal/logger"
	"github.com/deusflow/nieuwsmetai/internal/news"
	"github.com/deusflow/nieuwsmetai/internal/storage"
)

// Prune deletes articles whose content is missing or shorter than minLen characters.
func (a *App) Prune(ctx context.Context, minLen int) (int, error) {
	if minLen <= 0 {
		minLen = a.cfg.MinContentLen
	}
	n, err := a.store.DeleteMany(ctx, storage.Filter{ContentShorterThan: minLen})
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	logger.Info("short articles pruned", "count", n, "min_len", minLen)
	return n, nil
}

// BackfillTags recomputes the single tag of every stored article.
func (a *App) BackfillTags(ctx context.Context) (int, error) {
	all, err := a.store.Find(ctx, storage.Filter{}, storage.FindOptions{Sort: storage.SortFetchedAsc})
	if err != nil {
		return 0, fmt.Errorf("backfill tags: %w", err)
	}

	updated := 0
	for _, art := range all {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		tags := a.tagger.Tag(art.ContentText, art.Title, art.Source.Name, 1)
		if tags == nil {
			tags = []string{}
		}
		if err := a.store.UpdateOne(ctx, art.ID, storage.Update{Tags: tags}); err != nil {
			return updated, fmt.Errorf("update tags of %s: %w", art.ID, err)
		}
		updated++
	}
	logger.Info("tags backfilled", "count", updated)
	return updated, nil
}

// BackfillFullText fetches the page of every article shorter than the backfill threshold and
// stores the extracted text when it is strictly longer. Premium pages are left alone.
func (a *App) BackfillFullText(ctx context.Context) (int, error) {
	short, err := a.store.Find(ctx, storage.Filter{ContentShorterThan: a.cfg.BackfillMinLen}, storage.FindOptions{Sort: storage.SortFetchedAsc})
	if err != nil {
		return 0, fmt.Errorf("backfill fulltext: %w", err)
	}

	updated := 0
	for _, art := range short {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		if art.URL == "" {
			continue
		}
		log := logger.With("id", art.ID, "url", art.URL)

		page, err := a.pages.Fetch(ctx, art.URL)
		if err != nil {
			a.metrics.IncrementPageFetchFailures()
			log.Debug("page fetch failed", "error", err)
			continue
		}
		if a.premium.PageIsPremium(page.HTML) {
			log.Debug("premium page skipped")
			continue
		}

		ext := a.extractor.ExtractPage(page.HTML, page.URL)
		oldLen, newLen := news.TextLen(art.ContentText), news.TextLen(ext.Text)
		if newLen <= oldLen {
			continue
		}

		u := storage.Update{ContentText: &ext.Text, ContentRaw: &page.HTML}
		if art.ImageURL == "" && ext.LeadImage != "" {
			u.ImageURL = &ext.LeadImage
		}
		if err := a.store.UpdateOne(ctx, art.ID, u); err != nil {
			return updated, fmt.Errorf("update %s: %w", art.ID, err)
		}
		updated++
		log.Info("article backfilled with longer content", "old_len", oldLen, "new_len", newLen)
	}
	return updated, nil
}
