package pictures

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kumoreads/kumo/pkg/fetchcache"
	"github.com/kumoreads/kumo/pkg/fetchsession"
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

func TestLocalUploader(t *testing.T) {
	root := t.TempDir()
	uploader := NewLocalUploader(root)

	ref, err := uploader.Upload(context.Background(), "covers", "mangafox/solo-farming.jpg", []byte("image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, ObjectRef{Bucket: "covers", Key: "mangafox/solo-farming.jpg"}, ref)

	data, err := os.ReadFile(filepath.Join(root, "covers", "mangafox", "solo-farming.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)
	assert.Equal(t, filepath.Join(root, "covers", "mangafox", "solo-farming.jpg"), uploader.Path(ref))
}

func TestFetchCover(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("cover-bytes"))
	}))
	t.Cleanup(srv.Close)

	now := time.Now()
	source := &models.Source{ID: "mangafox", CreatedAt: now, UpdatedAt: now, BaseURL: srv.URL}
	_, err := db.NewInsert().Model(source).Exec(ctx)
	require.NoError(t, err)

	identity := &models.FetchSession{ID: "mangafox", CreatedAt: now, UserAgent: "Mozilla/5.0 (test)"}
	_, err = db.NewInsert().Model(identity).Exec(ctx)
	require.NoError(t, err)

	book := &models.Book{CreatedAt: now, UpdatedAt: now, Title: "Solo Farming"}
	_, err = db.NewInsert().Model(book).Exec(ctx)
	require.NoError(t, err)

	coverURL := srv.URL + "/covers/solo.webp"
	work := &models.SourceWork{
		SourceID:     "mangafox",
		SourceWorkID: "solo-farming",
		CreatedAt:    now,
		UpdatedAt:    now,
		Title:        "Solo Farming",
		CoverURL:     &coverURL,
		BookID:       &book.ID,
	}
	_, err = db.NewInsert().Model(work).Exec(ctx)
	require.NoError(t, err)

	root := t.TempDir()
	sessions := fetchsession.NewManager(db, fetchcache.NewService(db), nil, http.DefaultClient)
	svc := NewService(db, sessions, NewLocalUploader(root))

	require.NoError(t, svc.FetchCover(ctx, work))

	// The image landed on disk with its origin extension.
	data, err := os.ReadFile(filepath.Join(root, "covers", "mangafox", "solo-farming.webp"))
	require.NoError(t, err)
	assert.Equal(t, []byte("cover-bytes"), data)

	// Both the work and the linked book point at the stored object.
	stored := &models.SourceWork{}
	err = db.NewSelect().Model(stored).Where("source_id = ?", "mangafox").Where("source_work_id = ?", "solo-farming").Scan(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored.CoverStorageKey)
	assert.Equal(t, "mangafox/solo-farming.webp", *stored.CoverStorageKey)

	storedBook := &models.Book{}
	err = db.NewSelect().Model(storedBook).Where("b.id = ?", book.ID).Scan(ctx)
	require.NoError(t, err)
	require.NotNil(t, storedBook.CoverStorageKey)
	assert.Equal(t, "mangafox/solo-farming.webp", *storedBook.CoverStorageKey)
}

func TestFetchCoverNoURLIsNoop(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil, nil)

	work := &models.SourceWork{SourceID: "mangafox", SourceWorkID: "solo-farming"}
	require.NoError(t, svc.FetchCover(context.Background(), work))
}

func TestCoverExtension(t *testing.T) {
	assert.Equal(t, ".webp", coverExtension("https://cdn.example.com/a.webp"))
	assert.Equal(t, ".png", coverExtension("https://cdn.example.com/a.png?v=2"))
	assert.Equal(t, ".jpg", coverExtension("https://cdn.example.com/a"))
	assert.Equal(t, ".jpg", coverExtension("https://cdn.example.com/a.php"))
}
