package sources

import (
	"context"
	"database/sql"

	"github.com/kumoreads/kumo/pkg/errcodes"
	"github.com/kumoreads/kumo/pkg/fetchsession"
	"github.com/kumoreads/kumo/pkg/ingest"
	"github.com/kumoreads/kumo/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// Runner builds run contexts and drives adapter entry points that are not
// owned by the scheduler, like on-demand chapter page fetches.
type Runner struct {
	db       *bun.DB
	registry *Registry
	sessions *fetchsession.Manager
	ingest   *ingest.Service
}

func NewRunner(db *bun.DB, registry *Registry, sessions *fetchsession.Manager, ingestService *ingest.Service) *Runner {
	return &Runner{
		db:       db,
		registry: registry,
		sessions: sessions,
		ingest:   ingestService,
	}
}

// NewRunContext binds a run context to one adapter. The logger should already
// carry the run's scoping data.
func (r *Runner) NewRunContext(adapter Adapter, log logger.Logger) RunContext {
	return &runContext{
		adapter:  adapter,
		sessions: r.sessions,
		ingest:   r.ingest,
		log:      log,
	}
}

// EnsureChapterPages returns the chapter's page list, fetching it through the
// source adapter when the stored row doesn't have one yet.
func (r *Runner) EnsureChapterPages(ctx context.Context, chapterID int) ([]models.Page, error) {
	log := logger.FromContext(ctx)

	chapter := &models.Chapter{}
	err := r.db.NewSelect().Model(chapter).Where("ch.id = ?", chapterID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Chapter")
		}
		return nil, errors.WithStack(err)
	}

	if len(chapter.Pages) > 0 {
		return chapter.Pages, nil
	}

	adapter, ok := r.registry.Get(chapter.SourceID)
	if !ok {
		return nil, errcodes.NotFound("Source")
	}

	run := r.NewRunContext(adapter, log)
	pages, err := adapter.FetchChapterPages(ctx, run, chapter.SourceWorkID, chapter.NativeID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch chapter pages")
	}

	if err := r.ingest.SetChapterPages(ctx, chapter.ID, pages); err != nil {
		return nil, errors.WithStack(err)
	}

	return pages, nil
}

type runContext struct {
	adapter  Adapter
	sessions *fetchsession.Manager
	ingest   *ingest.Service
	log      logger.Logger
}

func (rc *runContext) OpenSession(ctx context.Context) (*fetchsession.Session, error) {
	return rc.sessions.OpenSession(ctx, fetchsession.OpenSessionOptions{
		ID:      rc.adapter.ID(),
		BaseURL: rc.adapter.BaseURL(),
	})
}

func (rc *runContext) UpsertWorks(ctx context.Context, candidates []ingest.WorkCandidate) error {
	return rc.ingest.UpsertWorks(ctx, rc.adapter.ID(), candidates)
}

func (rc *runContext) Log() logger.Logger {
	return rc.log
}
