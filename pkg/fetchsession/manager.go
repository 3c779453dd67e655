package fetchsession

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/kumoreads/kumo/pkg/fetchcache"
	"github.com/kumoreads/kumo/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// Manager resolves URLs to pages, reusing persisted browsing identities and
// the payload cache before touching the network. When a session has no
// identity yet, the first fetch goes through the challenge solver and the
// identity it establishes is persisted for every later fetch.
type Manager struct {
	db     *bun.DB
	cache  *fetchcache.Service
	solver Solver
	client *http.Client
	log    logger.Logger
	clock  func() time.Time
}

func NewManager(db *bun.DB, cache *fetchcache.Service, solver Solver, client *http.Client) *Manager {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Manager{
		db:     db,
		cache:  cache,
		solver: solver,
		client: client,
		log:    logger.New(),
		clock:  time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

type OpenSessionOptions struct {
	// ID identifies the persisted identity; adapters default it to the
	// source slug.
	ID string
	// BaseURL is joined with relative paths passed to Session.Go.
	BaseURL string
	// IgnorePrevious skips any persisted identity and forces the next fetch
	// through the challenge solver.
	IgnorePrevious bool
}

// OpenSession loads the persisted identity for the given id, if any, and
// returns a Session bound to it.
func (m *Manager) OpenSession(ctx context.Context, opts OpenSessionOptions) (*Session, error) {
	if opts.ID == "" {
		return nil, errors.New("session id is required")
	}

	sess := &Session{
		manager: m,
		id:      opts.ID,
		baseURL: opts.BaseURL,
	}

	if opts.IgnorePrevious {
		return sess, nil
	}

	identity := &models.FetchSession{}
	err := m.db.NewSelect().
		Model(identity).
		Where("fs.id = ?", opts.ID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sess, nil
		}
		return nil, errors.WithStack(err)
	}

	sess.identity = identity
	return sess, nil
}

// saveIdentity upserts the browsing identity a bootstrap fetch established.
func (m *Manager) saveIdentity(ctx context.Context, identity *models.FetchSession) error {
	_, err := m.db.NewInsert().
		Model(identity).
		On("CONFLICT (id) DO UPDATE").
		Set("created_at = EXCLUDED.created_at").
		Set("user_agent = EXCLUDED.user_agent").
		Set("cookies = EXCLUDED.cookies").
		Exec(ctx)
	return errors.WithStack(err)
}

// InvalidateSession drops the persisted identity, forcing the next fetch for
// that session through the challenge solver.
func (m *Manager) InvalidateSession(ctx context.Context, id string) error {
	_, err := m.db.NewDelete().
		Model((*models.FetchSession)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return errors.WithStack(err)
}
