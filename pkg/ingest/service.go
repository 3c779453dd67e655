package ingest

import (
	"context"
	"time"

	"github.com/kumoreads/kumo/pkg/models"
	"github.com/kumoreads/kumo/pkg/sortname"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// Notifier is told when a book gained chapters so dependent state (unread
// counters) can be recomputed. Failures are logged, never propagated: a
// missed recompute must not fail an otherwise successful upsert.
type Notifier interface {
	OnBookChaptersChanged(ctx context.Context, bookID int) error
}

// CoverFetcher copies a work's cover into object storage. Best-effort, same
// as Notifier.
type CoverFetcher interface {
	FetchCover(ctx context.Context, work *models.SourceWork) error
}

// Service reconciles extracted candidates into canonical storage. The only
// conflict-resolution mechanism is per-field accuracy comparison: a field is
// rewritten when its value changed and the incoming accuracy is at least the
// stored one, so data quality never regresses, and concurrent upserts settle
// on the higher-accuracy write.
type Service struct {
	db       *bun.DB
	notifier Notifier
	covers   CoverFetcher
}

func NewService(db *bun.DB, notifier Notifier, covers CoverFetcher) *Service {
	return &Service{db: db, notifier: notifier, covers: covers}
}

// UpsertWorks merges candidates for one source into stored state. Safe to
// call repeatedly with overlapping or identical candidate sets. Each
// sub-step is its own atomic write; a failure mid-way leaves earlier steps
// committed, which a retry absorbs idempotently.
func (svc *Service) UpsertWorks(ctx context.Context, sourceID string, candidates []WorkCandidate) error {
	log := logger.FromContext(ctx)

	if err := svc.ensureSource(ctx, sourceID); err != nil {
		return err
	}

	if len(candidates) == 0 {
		return nil
	}

	existing, err := svc.findSourceWorks(ctx, sourceID, candidateIDs(candidates))
	if err != nil {
		return err
	}

	now := time.Now()
	var toCreate []*models.SourceWork
	for i := range candidates {
		c := &candidates[i]
		if stored, ok := existing[c.ID]; ok {
			if err := svc.updateSourceWorkFields(ctx, stored, c, now); err != nil {
				return err
			}
			continue
		}
		toCreate = append(toCreate, newSourceWork(sourceID, c, now))
	}

	if len(toCreate) > 0 {
		_, err := svc.db.NewInsert().
			Model(&toCreate).
			On("CONFLICT (source_id, source_work_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	books, err := svc.syncBooks(ctx, sourceID, candidateIDs(candidates), now)
	if err != nil {
		return err
	}

	for i := range candidates {
		c := &candidates[i]
		created, err := svc.upsertChapters(ctx, sourceID, c, now)
		if err != nil {
			return err
		}
		if created > 0 {
			if bookID, ok := books[c.ID]; ok && svc.notifier != nil {
				if err := svc.notifier.OnBookChaptersChanged(ctx, bookID); err != nil {
					log.Err(err).Warn("unread recompute failed", logger.Data{"book_id": bookID})
				}
			}
		}
	}

	return nil
}

// ensureSource creates the Source row on first contact. Idempotent.
func (svc *Service) ensureSource(ctx context.Context, sourceID string) error {
	now := time.Now()
	source := &models.Source{
		ID:        sourceID,
		CreatedAt: now,
		UpdatedAt: now,
		Name:      sourceID,
	}
	_, err := svc.db.NewInsert().
		Model(source).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) findSourceWorks(ctx context.Context, sourceID string, ids []string) (map[string]*models.SourceWork, error) {
	var works []*models.SourceWork
	err := svc.db.NewSelect().
		Model(&works).
		Where("sw.source_id = ?", sourceID).
		Where("sw.source_work_id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	byID := make(map[string]*models.SourceWork, len(works))
	for _, w := range works {
		byID[w.SourceWorkID] = w
	}
	return byID, nil
}

// updateSourceWorkFields applies the accuracy-monotonic write rule to each
// scalar field. Ties favor the incoming value so text normalization fixes at
// the same accuracy level still land.
func (svc *Service) updateSourceWorkFields(ctx context.Context, stored *models.SourceWork, c *WorkCandidate, now time.Time) error {
	var columns []string

	if c.Title != "" && c.Title != stored.Title && c.TitleAccuracy >= stored.TitleAccuracy {
		stored.Title = c.Title
		stored.TitleAccuracy = c.TitleAccuracy
		columns = append(columns, "title", "title_accuracy")
	}

	if c.Description != "" && c.DescriptionAccuracy >= stored.DescriptionAccuracy {
		if stored.Description == nil || *stored.Description != c.Description {
			stored.Description = &c.Description
			stored.DescriptionAccuracy = c.DescriptionAccuracy
			columns = append(columns, "description", "description_accuracy")
		}
	}

	// Cover precedence is implicit: only a changed origin URL overwrites,
	// and clearing the storage key queues a re-fetch.
	if c.CoverURL != "" && (stored.CoverURL == nil || *stored.CoverURL != c.CoverURL) {
		stored.CoverURL = &c.CoverURL
		stored.CoverStorageKey = nil
		columns = append(columns, "cover_url", "cover_storage_key")
	}

	if c.URL != "" && c.URL != stored.URL {
		stored.URL = c.URL
		columns = append(columns, "url")
	}

	if len(columns) == 0 {
		return nil
	}

	stored.UpdatedAt = now
	columns = append(columns, "updated_at")

	_, err := svc.db.NewUpdate().
		Model(stored).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

// syncBooks links every touched SourceWork that has no canonical book yet to
// a freshly created one, 1:1, seeded from the work's current title and
// cover. Returns the book id per source work id for all touched works.
func (svc *Service) syncBooks(ctx context.Context, sourceID string, ids []string, now time.Time) (map[string]int, error) {
	var works []*models.SourceWork
	err := svc.db.NewSelect().
		Model(&works).
		Where("sw.source_id = ?", sourceID).
		Where("sw.source_work_id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	log := logger.FromContext(ctx)
	books := make(map[string]int, len(works))

	for _, work := range works {
		if work.BookID != nil {
			books[work.SourceWorkID] = *work.BookID
			continue
		}

		book := &models.Book{
			CreatedAt:       now,
			UpdatedAt:       now,
			Title:           work.Title,
			SortTitle:       sortname.ForTitle(work.Title),
			CoverStorageKey: work.CoverStorageKey,
		}
		_, err := svc.db.NewInsert().Model(book).Exec(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}

		work.BookID = &book.ID
		work.UpdatedAt = now
		_, err = svc.db.NewUpdate().
			Model(work).
			Column("book_id", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}

		books[work.SourceWorkID] = book.ID

		if svc.covers != nil && work.CoverURL != nil && work.CoverStorageKey == nil {
			if err := svc.covers.FetchCover(ctx, work); err != nil {
				log.Err(err).Warn("cover fetch failed", logger.Data{"source_work_id": work.SourceWorkID})
			}
		}
	}

	return books, nil
}

// upsertChapters creates missing chapters and updates published timestamps
// in two batched writes; returns how many chapters were created.
func (svc *Service) upsertChapters(ctx context.Context, sourceID string, c *WorkCandidate, now time.Time) (int, error) {
	if len(c.Chapters) == 0 {
		return 0, nil
	}

	// Dedupe within the batch by native id; first occurrence wins.
	seen := make(map[string]bool, len(c.Chapters))
	incoming := make([]*ChapterCandidate, 0, len(c.Chapters))
	nativeIDs := make([]string, 0, len(c.Chapters))
	for i := range c.Chapters {
		ch := &c.Chapters[i]
		if ch.NativeID == "" || seen[ch.NativeID] {
			continue
		}
		seen[ch.NativeID] = true
		incoming = append(incoming, ch)
		nativeIDs = append(nativeIDs, ch.NativeID)
	}
	if len(incoming) == 0 {
		return 0, nil
	}

	var stored []*models.Chapter
	err := svc.db.NewSelect().
		Model(&stored).
		Where("ch.source_id = ?", sourceID).
		Where("ch.source_work_id = ?", c.ID).
		Where("ch.native_id IN (?)", bun.In(nativeIDs)).
		Scan(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	byNativeID := make(map[string]*models.Chapter, len(stored))
	for _, ch := range stored {
		byNativeID[ch.NativeID] = ch
	}

	var toCreate []*models.Chapter
	var toUpdate []*models.Chapter
	for _, ch := range incoming {
		existing, ok := byNativeID[ch.NativeID]
		if !ok {
			toCreate = append(toCreate, &models.Chapter{
				CreatedAt:           now,
				UpdatedAt:           now,
				SourceID:            sourceID,
				SourceWorkID:        c.ID,
				NativeID:            ch.NativeID,
				Rank:                ch.Rank,
				Title:               ch.Title,
				URL:                 ch.URL,
				PublishedAt:         ch.PublishedAt,
				PublishedAtAccuracy: ch.PublishedAtAccuracy,
				Pages:               ch.Pages,
			})
			continue
		}

		if ch.PublishedAt != nil &&
			ch.PublishedAtAccuracy >= existing.PublishedAtAccuracy &&
			(existing.PublishedAt == nil || !existing.PublishedAt.Equal(*ch.PublishedAt)) {
			existing.PublishedAt = ch.PublishedAt
			existing.PublishedAtAccuracy = ch.PublishedAtAccuracy
			existing.UpdatedAt = now
			toUpdate = append(toUpdate, existing)
		}
	}

	if len(toCreate) > 0 {
		_, err := svc.db.NewInsert().
			Model(&toCreate).
			On("CONFLICT (source_id, source_work_id, native_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return 0, errors.WithStack(err)
		}
	}

	if len(toUpdate) > 0 {
		_, err := svc.db.NewUpdate().
			Model(&toUpdate).
			Column("published_at", "published_at_accuracy", "updated_at").
			Bulk().
			Exec(ctx)
		if err != nil {
			return 0, errors.WithStack(err)
		}
	}

	return len(toCreate), nil
}

// SetChapterPages stores a freshly fetched page list on a chapter. Used by
// the on-demand page fetch path, which runs concurrently with the scheduler.
func (svc *Service) SetChapterPages(ctx context.Context, chapterID int, pages []models.Page) error {
	_, err := svc.db.NewUpdate().
		Model((*models.Chapter)(nil)).
		Set("pages = ?", pages).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", chapterID).
		Exec(ctx)
	return errors.WithStack(err)
}

func candidateIDs(candidates []WorkCandidate) []string {
	ids := make([]string, len(candidates))
	for i := range candidates {
		ids[i] = candidates[i].ID
	}
	return ids
}

func newSourceWork(sourceID string, c *WorkCandidate, now time.Time) *models.SourceWork {
	work := &models.SourceWork{
		SourceID:      sourceID,
		SourceWorkID:  c.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
		URL:           c.URL,
		Title:         c.Title,
		TitleAccuracy: c.TitleAccuracy,
	}
	if c.Description != "" {
		work.Description = &c.Description
		work.DescriptionAccuracy = c.DescriptionAccuracy
	}
	if c.CoverURL != "" {
		work.CoverURL = &c.CoverURL
	}
	return work
}
