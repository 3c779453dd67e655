package scheduler

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/kumoreads/kumo/pkg/config"
	"github.com/kumoreads/kumo/pkg/ingest"
	"github.com/kumoreads/kumo/pkg/migrations"
	"github.com/kumoreads/kumo/pkg/models"
	"github.com/kumoreads/kumo/pkg/sources"
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

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type fakeAdapter struct {
	id    string
	err   error
	calls int
}

func (a *fakeAdapter) ID() string      { return a.id }
func (a *fakeAdapter) Name() string    { return a.id }
func (a *fakeAdapter) BaseURL() string { return "https://" + a.id + ".example.com" }

func (a *fakeAdapter) FetchLatest(_ context.Context, _ sources.RunContext) error {
	a.calls++
	return a.err
}

func (a *fakeAdapter) FetchWorkDetails(_ context.Context, _ sources.RunContext, _ string) error {
	return nil
}

func (a *fakeAdapter) FetchChapterPages(_ context.Context, _ sources.RunContext, _, _ string) ([]models.Page, error) {
	return nil, nil
}

func seedSource(t *testing.T, db *bun.DB, id string, subscribed bool) {
	t.Helper()

	now := time.Now()
	source := &models.Source{
		ID:         id,
		CreatedAt:  now,
		UpdatedAt:  now,
		Name:       id,
		Subscribed: subscribed,
	}
	_, err := db.NewInsert().Model(source).Exec(context.Background())
	require.NoError(t, err)
}

func getSource(t *testing.T, db *bun.DB, id string) *models.Source {
	t.Helper()

	source := &models.Source{}
	err := db.NewSelect().Model(source).Where("s.id = ?", id).Scan(context.Background())
	require.NoError(t, err)
	return source
}

func newTestScheduler(t *testing.T, db *bun.DB, clock Clock, adapters ...sources.Adapter) (*Scheduler, *sources.Registry) {
	t.Helper()

	registry := sources.NewRegistry()
	for _, adapter := range adapters {
		require.NoError(t, registry.Register(adapter))
	}
	runner := sources.NewRunner(db, registry, nil, ingest.NewService(db, nil, nil))

	return New(&config.Config{}, db, registry, runner).WithClock(clock), registry
}

func TestRetryStateBackoffProgression(t *testing.T) {
	rs := NewRetryState()
	base := 30 * time.Minute
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	// 2*(count+1)*base with a 30m base gives 60m, 120m, 180m.
	first := rs.RecordFailure("mangafox", now, base)
	assert.Equal(t, now.Add(60*time.Minute), first)

	second := rs.RecordFailure("mangafox", now, base)
	assert.Equal(t, now.Add(120*time.Minute), second)

	third := rs.RecordFailure("mangafox", now, base)
	assert.Equal(t, now.Add(180*time.Minute), third)

	assert.True(t, rs.Blocked("mangafox", now))
	assert.True(t, rs.Blocked("mangafox", now.Add(179*time.Minute)))
	assert.False(t, rs.Blocked("mangafox", now.Add(180*time.Minute)))

	// Success wipes the history, so the next failure starts over at 60m.
	rs.Clear("mangafox")
	assert.False(t, rs.Blocked("mangafox", now))
	assert.Equal(t, now.Add(60*time.Minute), rs.RecordFailure("mangafox", now, base))
}

func TestTickFetchesDueSources(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{now: time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)}
	adapter := &fakeAdapter{id: "mangafox"}
	s, _ := newTestScheduler(t, db, clock, adapter)
	seedSource(t, db, "mangafox", true)

	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 1, adapter.calls)

	source := getSource(t, db, "mangafox")
	require.NotNil(t, source.LastFetchedLatestsAt)
	assert.True(t, source.LastFetchedLatestsAt.Equal(clock.now))

	// Within the min refetch delay nothing is due.
	clock.advance(30 * time.Minute)
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 1, adapter.calls)

	// Past the delay the source is fetched again.
	clock.advance(31 * time.Minute)
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 2, adapter.calls)
}

func TestTickSkipsUnsubscribedSources(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{now: time.Now()}
	adapter := &fakeAdapter{id: "mangafox"}
	s, _ := newTestScheduler(t, db, clock, adapter)
	seedSource(t, db, "mangafox", false)

	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 0, adapter.calls)
}

func TestTickFailureIsolationAndBackoff(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{now: time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)}
	failing := &fakeAdapter{id: "flaky", err: assert.AnError}
	healthy := &fakeAdapter{id: "steady"}
	s, _ := newTestScheduler(t, db, clock, failing, healthy)
	seedSource(t, db, "flaky", true)
	seedSource(t, db, "steady", true)

	// One source failing never stops the other from being fetched.
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, healthy.calls)

	// A failed source gets no last-fetched timestamp.
	assert.Nil(t, getSource(t, db, "flaky").LastFetchedLatestsAt)
	assert.NotNil(t, getSource(t, db, "steady").LastFetchedLatestsAt)

	// Past the first 60m window the flaky source is retried and fails again,
	// pushing its next attempt out by 120m.
	clock.advance(61 * time.Minute)
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 2, failing.calls)
	assert.Equal(t, 2, healthy.calls)

	// Due again by delay, but still inside the 120m backoff window.
	clock.advance(61 * time.Minute)
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 2, failing.calls)
	assert.Equal(t, 3, healthy.calls)

	// Once the window passes and the source recovers, state is cleared.
	failing.err = nil
	clock.advance(60 * time.Minute)
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 3, failing.calls)
	require.NotNil(t, getSource(t, db, "flaky").LastFetchedLatestsAt)
	assert.True(t, getSource(t, db, "flaky").LastFetchedLatestsAt.Equal(clock.now))
}

func TestForceRefetchBypassesDelayAndBackoff(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{now: time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)}
	adapter := &fakeAdapter{id: "mangafox", err: assert.AnError}
	s, _ := newTestScheduler(t, db, clock, adapter)
	seedSource(t, db, "mangafox", true)

	// First tick fails and opens a backoff window.
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 1, adapter.calls)

	// A plain tick is blocked by the window.
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 1, adapter.calls)

	// Forcing runs it anyway.
	adapter.err = nil
	s.ForceRefetch("mangafox")
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 2, adapter.calls)

	// The force flag is consumed by the tick that honored it.
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 2, adapter.calls)
}

func TestForceRefetchRunsUnsubscribedSource(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{now: time.Now()}
	adapter := &fakeAdapter{id: "mangafox"}
	s, _ := newTestScheduler(t, db, clock, adapter)
	seedSource(t, db, "mangafox", false)

	// Plain ticks leave unsubscribed sources alone.
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 0, adapter.calls)

	// An operator force runs the source despite the subscription flag.
	s.ForceRefetch("mangafox")
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 1, adapter.calls)
	assert.NotNil(t, getSource(t, db, "mangafox").LastFetchedLatestsAt)

	// The flag is one-shot; the next tick skips it again.
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 1, adapter.calls)
}
