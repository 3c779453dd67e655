package fetchcache

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/kumoreads/kumo/pkg/migrations"
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

func TestHourKey(t *testing.T) {
	base := time.Date(2026, 8, 10, 14, 0, 0, 0, time.UTC)

	t.Run("same hour yields same key", func(t *testing.T) {
		k1 := HourKey("https://example.com/manga/1", base.Add(5*time.Minute))
		k2 := HourKey("https://example.com/manga/1", base.Add(59*time.Minute))
		assert.Equal(t, k1, k2)
	})

	t.Run("different hour yields different key", func(t *testing.T) {
		k1 := HourKey("https://example.com/manga/1", base)
		k2 := HourKey("https://example.com/manga/1", base.Add(time.Hour))
		assert.NotEqual(t, k1, k2)
	})
}

func TestServiceGetPut(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	t.Run("get after put returns body and status", func(t *testing.T) {
		now := time.Date(2026, 8, 10, 14, 30, 0, 0, time.UTC)
		key := HourKey("https://example.com/latest", now)

		require.NoError(t, svc.Put(ctx, key, "<html>one</html>", 200))

		entry, err := svc.Get(ctx, HourKey("https://example.com/latest", now.Add(10*time.Minute)))
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "<html>one</html>", entry.Body)
		assert.Equal(t, 200, entry.StatusCode)
	})

	t.Run("missing key returns nil without error", func(t *testing.T) {
		entry, err := svc.Get(ctx, "nope:https://example.com/none")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("same-key put overwrites", func(t *testing.T) {
		key := SessionKey("mangafox", "https://example.com/page")
		require.NoError(t, svc.Put(ctx, key, "first", 200))
		require.NoError(t, svc.Put(ctx, key, "second", 503))

		entry, err := svc.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "second", entry.Body)
		assert.Equal(t, 503, entry.StatusCode)
	})

	t.Run("later hour does not clobber earlier hour entry", func(t *testing.T) {
		t1 := time.Date(2026, 8, 10, 9, 15, 0, 0, time.UTC)
		t2 := t1.Add(2 * time.Hour)
		url := "https://example.com/hourly"

		require.NoError(t, svc.Put(ctx, HourKey(url, t1), "early", 200))
		require.NoError(t, svc.Put(ctx, HourKey(url, t2), "late", 200))

		entry, err := svc.Get(ctx, HourKey(url, t1))
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "early", entry.Body)
	})
}

func TestServiceGetLatestByURL(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	url := "https://example.com/manga/42"
	t1 := time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC)

	require.NoError(t, svc.Put(ctx, HourKey(url, t1), "old", 200))
	// Ensure a strictly newer created_at for the second entry.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, svc.Put(ctx, HourKey(url, t1.Add(3*time.Hour)), "new", 200))

	entry, err := svc.GetLatestByURL(ctx, url)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "new", entry.Body)

	entry, err = svc.GetLatestByURL(ctx, "https://example.com/never-fetched")
	require.NoError(t, err)
	assert.Nil(t, entry)
}
