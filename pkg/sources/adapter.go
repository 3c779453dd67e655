package sources

import (
	"context"

	"github.com/kumoreads/kumo/pkg/fetchsession"
	"github.com/kumoreads/kumo/pkg/ingest"
	"github.com/kumoreads/kumo/pkg/models"
	"github.com/robinjoseph08/golib/logger"
)

// Adapter is a single upstream catalog site. Implementations are built from
// declarative operation trees and stay free of storage concerns; everything
// they need at runtime comes through the RunContext.
type Adapter interface {
	// ID is the stable slug used as the sources table primary key.
	ID() string
	Name() string
	BaseURL() string

	// FetchLatest walks the latest-updates listing and upserts what it finds.
	FetchLatest(ctx context.Context, run RunContext) error
	// FetchWorkDetails fetches one work's detail page for higher-accuracy
	// fields and the full chapter list.
	FetchWorkDetails(ctx context.Context, run RunContext, workID string) error
	// FetchChapterPages returns the page list for one chapter.
	FetchChapterPages(ctx context.Context, run RunContext, workID string, chapterNativeID string) ([]models.Page, error)
}

// RunContext is the capability surface handed to an adapter for one run. It
// is already bound to the adapter's source, so adapters never pass their own
// slug around.
type RunContext interface {
	OpenSession(ctx context.Context) (*fetchsession.Session, error)
	UpsertWorks(ctx context.Context, candidates []ingest.WorkCandidate) error
	Log() logger.Logger
}
