package ingest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/kumoreads/kumo/pkg/migrations"
	"github.com/kumoreads/kumo/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

type recordingNotifier struct {
	bookIDs []int
	err     error
}

func (n *recordingNotifier) OnBookChaptersChanged(_ context.Context, bookID int) error {
	n.bookIDs = append(n.bookIDs, bookID)
	return n.err
}

func getSourceWork(t *testing.T, db *bun.DB, sourceID, workID string) *models.SourceWork {
	t.Helper()

	work := &models.SourceWork{}
	err := db.NewSelect().
		Model(work).
		Where("source_id = ?", sourceID).
		Where("source_work_id = ?", workID).
		Scan(context.Background())
	require.NoError(t, err)
	return work
}

func listChapters(t *testing.T, db *bun.DB, sourceID, workID string) []*models.Chapter {
	t.Helper()

	var chapters []*models.Chapter
	err := db.NewSelect().
		Model(&chapters).
		Where("source_id = ?", sourceID).
		Where("source_work_id = ?", workID).
		Order("rank ASC").
		Scan(context.Background())
	require.NoError(t, err)
	return chapters
}

func TestUpsertWorksCreatesSourceAndWorks(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil, nil)
	ctx := context.Background()

	err := svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
		{ID: "w1", Title: "Solo Farming", TitleAccuracy: models.AccuracyListing, CoverURL: "https://cdn.example.com/1.jpg"},
	})
	require.NoError(t, err)

	// The source row was auto-created, with no base URL known yet.
	source := &models.Source{}
	err = db.NewSelect().Model(source).Where("id = ?", "mangafox").Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mangafox", source.Name)
	assert.Empty(t, source.BaseURL)

	work := getSourceWork(t, db, "mangafox", "w1")
	assert.Equal(t, "Solo Farming", work.Title)
	assert.Equal(t, models.AccuracyListing, work.TitleAccuracy)
	require.NotNil(t, work.BookID)

	// The canonical book was seeded from the work.
	book := &models.Book{}
	err = db.NewSelect().Model(book).Where("id = ?", *work.BookID).Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Solo Farming", book.Title)
}

func TestUpsertWorksEmptyBatchStillCreatesSource(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil, nil)
	ctx := context.Background()

	err := svc.UpsertWorks(ctx, "mangafox", nil)
	require.NoError(t, err)

	source := &models.Source{}
	err = db.NewSelect().Model(source).Where("id = ?", "mangafox").Scan(ctx)
	require.NoError(t, err)

	count, err := db.NewSelect().Model((*models.SourceWork)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpsertWorksAccuracyMonotonic(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil, nil)
	ctx := context.Background()

	err := svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
		{ID: "w1", Title: "Foo", TitleAccuracy: 10},
	})
	require.NoError(t, err)

	t.Run("lower accuracy does not overwrite", func(t *testing.T) {
		err := svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
			{ID: "w1", Title: "Bar", TitleAccuracy: 5},
		})
		require.NoError(t, err)
		assert.Equal(t, "Foo", getSourceWork(t, db, "mangafox", "w1").Title)
	})

	t.Run("equal accuracy overwrites", func(t *testing.T) {
		err := svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
			{ID: "w1", Title: "Bar", TitleAccuracy: 10},
		})
		require.NoError(t, err)
		assert.Equal(t, "Bar", getSourceWork(t, db, "mangafox", "w1").Title)
	})

	t.Run("higher accuracy overwrites and sticks", func(t *testing.T) {
		err := svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
			{ID: "w1", Title: "Solo Farming Life", TitleAccuracy: 20},
		})
		require.NoError(t, err)

		work := getSourceWork(t, db, "mangafox", "w1")
		assert.Equal(t, "Solo Farming Life", work.Title)
		assert.Equal(t, 20, work.TitleAccuracy)

		// A later listing-accuracy pass can no longer regress the title.
		err = svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
			{ID: "w1", Title: "Solo Farming", TitleAccuracy: 10},
		})
		require.NoError(t, err)
		assert.Equal(t, "Solo Farming Life", getSourceWork(t, db, "mangafox", "w1").Title)
	})
}

func TestUpsertWorksCoverChangesOnlyWithNewURL(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil, nil)
	ctx := context.Background()

	err := svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
		{ID: "w1", Title: "Foo", TitleAccuracy: 10, CoverURL: "https://cdn.example.com/a.jpg"},
	})
	require.NoError(t, err)

	// Simulate the picture pipeline having stored the cover.
	work := getSourceWork(t, db, "mangafox", "w1")
	key := "covers/mangafox/w1.jpg"
	work.CoverStorageKey = &key
	_, err = db.NewUpdate().Model(work).Column("cover_storage_key").WherePK().Exec(ctx)
	require.NoError(t, err)

	t.Run("same cover URL keeps storage key", func(t *testing.T) {
		err := svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
			{ID: "w1", Title: "Foo", TitleAccuracy: 10, CoverURL: "https://cdn.example.com/a.jpg"},
		})
		require.NoError(t, err)

		work := getSourceWork(t, db, "mangafox", "w1")
		require.NotNil(t, work.CoverStorageKey)
		assert.Equal(t, key, *work.CoverStorageKey)
	})

	t.Run("new cover URL clears storage key for refetch", func(t *testing.T) {
		err := svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
			{ID: "w1", Title: "Foo", TitleAccuracy: 10, CoverURL: "https://cdn.example.com/b.jpg"},
		})
		require.NoError(t, err)

		work := getSourceWork(t, db, "mangafox", "w1")
		require.NotNil(t, work.CoverURL)
		assert.Equal(t, "https://cdn.example.com/b.jpg", *work.CoverURL)
		assert.Nil(t, work.CoverStorageKey)
	})
}

func TestUpsertWorksIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil, nil)
	ctx := context.Background()

	published := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	candidates := []WorkCandidate{
		{
			ID: "w1", Title: "Foo", TitleAccuracy: 10,
			Chapters: []ChapterCandidate{
				{NativeID: "c1", Rank: 1, Title: "Chapter 1", PublishedAt: &published, PublishedAtAccuracy: 10},
				{NativeID: "c2", Rank: 2, Title: "Chapter 2", PublishedAt: &published, PublishedAtAccuracy: 10},
			},
		},
	}

	require.NoError(t, svc.UpsertWorks(ctx, "mangafox", candidates))
	firstWork := getSourceWork(t, db, "mangafox", "w1")
	firstChapters := listChapters(t, db, "mangafox", "w1")

	require.NoError(t, svc.UpsertWorks(ctx, "mangafox", candidates))
	secondWork := getSourceWork(t, db, "mangafox", "w1")
	secondChapters := listChapters(t, db, "mangafox", "w1")

	assert.Equal(t, firstWork.Title, secondWork.Title)
	assert.Equal(t, firstWork.BookID, secondWork.BookID)
	require.Len(t, secondChapters, 2)
	assert.Equal(t, firstChapters[0].ID, secondChapters[0].ID)
	assert.Equal(t, firstChapters[1].ID, secondChapters[1].ID)

	// Only one book exists for the work across both passes.
	count, err := db.NewSelect().Model((*models.Book)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpsertWorksChapterIdentity(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil, nil)
	ctx := context.Background()

	t.Run("duplicate native ids within one batch produce one row", func(t *testing.T) {
		err := svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
			{
				ID: "w1", Title: "Foo", TitleAccuracy: 10,
				Chapters: []ChapterCandidate{
					{NativeID: "10", Rank: 10},
					{NativeID: "10", Rank: 10},
				},
			},
		})
		require.NoError(t, err)
		assert.Len(t, listChapters(t, db, "mangafox", "w1"), 1)
	})

	t.Run("sub-chapter ranks are preserved", func(t *testing.T) {
		err := svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
			{
				ID: "w1", Title: "Foo", TitleAccuracy: 10,
				Chapters: []ChapterCandidate{
					{NativeID: "12-5", Rank: 12.5, Title: "Chapter 12.5"},
				},
			},
		})
		require.NoError(t, err)

		chapters := listChapters(t, db, "mangafox", "w1")
		require.Len(t, chapters, 2)
		assert.InDelta(t, 12.5, chapters[1].Rank, 0.0001)
	})
}

func TestUpsertWorksChapterPublishedAtAccuracy(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil, nil)
	ctx := context.Background()

	listingDate := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	detailDate := time.Date(2026, 8, 2, 12, 30, 0, 0, time.UTC)

	err := svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
		{ID: "w1", Title: "Foo", TitleAccuracy: 10, Chapters: []ChapterCandidate{
			{NativeID: "c1", Rank: 1, PublishedAt: &detailDate, PublishedAtAccuracy: models.AccuracyDetails},
		}},
	})
	require.NoError(t, err)

	// A listing pass with a coarser date must not replace the detail date.
	err = svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
		{ID: "w1", Title: "Foo", TitleAccuracy: 10, Chapters: []ChapterCandidate{
			{NativeID: "c1", Rank: 1, PublishedAt: &listingDate, PublishedAtAccuracy: models.AccuracyListing},
		}},
	})
	require.NoError(t, err)

	chapters := listChapters(t, db, "mangafox", "w1")
	require.Len(t, chapters, 1)
	require.NotNil(t, chapters[0].PublishedAt)
	assert.True(t, chapters[0].PublishedAt.Equal(detailDate))
	assert.Equal(t, models.AccuracyDetails, chapters[0].PublishedAtAccuracy)
}

func TestUpsertWorksNotifiesOnNewChapters(t *testing.T) {
	db := newTestDB(t)
	notifier := &recordingNotifier{}
	svc := NewService(db, notifier, nil)
	ctx := context.Background()

	err := svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
		{ID: "w1", Title: "Foo", TitleAccuracy: 10, Chapters: []ChapterCandidate{
			{NativeID: "c1", Rank: 1},
		}},
	})
	require.NoError(t, err)
	require.Len(t, notifier.bookIDs, 1)

	// Re-upserting identical chapters creates nothing and stays silent.
	err = svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
		{ID: "w1", Title: "Foo", TitleAccuracy: 10, Chapters: []ChapterCandidate{
			{NativeID: "c1", Rank: 1},
		}},
	})
	require.NoError(t, err)
	assert.Len(t, notifier.bookIDs, 1)
}

func TestUpsertWorksNotifierFailureDoesNotFailUpsert(t *testing.T) {
	db := newTestDB(t)
	notifier := &recordingNotifier{err: assert.AnError}
	svc := NewService(db, notifier, nil)

	err := svc.UpsertWorks(context.Background(), "mangafox", []WorkCandidate{
		{ID: "w1", Title: "Foo", TitleAccuracy: 10, Chapters: []ChapterCandidate{
			{NativeID: "c1", Rank: 1},
		}},
	})
	require.NoError(t, err)
}

func TestSetChapterPages(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil, nil)
	ctx := context.Background()

	err := svc.UpsertWorks(ctx, "mangafox", []WorkCandidate{
		{ID: "w1", Title: "Foo", TitleAccuracy: 10, Chapters: []ChapterCandidate{
			{NativeID: "c1", Rank: 1},
		}},
	})
	require.NoError(t, err)

	chapters := listChapters(t, db, "mangafox", "w1")
	require.Len(t, chapters, 1)

	pages := []models.Page{
		{URL: "https://cdn.example.com/p1.jpg", Width: 800, Height: 1200},
		{URL: "https://cdn.example.com/p2.jpg", Width: 800, Height: 1200},
	}
	require.NoError(t, svc.SetChapterPages(ctx, chapters[0].ID, pages))

	updated := listChapters(t, db, "mangafox", "w1")
	require.Len(t, updated, 1)
	assert.Equal(t, pages, updated[0].Pages)
}
