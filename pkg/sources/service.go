package sources

import (
	"context"
	"database/sql"
	"time"

	"github.com/kumoreads/kumo/pkg/errcodes"
	"github.com/kumoreads/kumo/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveSourceOptions struct {
	ID *string
}

type ListSourcesOptions struct {
	Subscribed *bool
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) ListSources(ctx context.Context, opts ListSourcesOptions) ([]*models.Source, error) {
	sources := []*models.Source{}

	q := svc.db.
		NewSelect().
		Model(&sources).
		Order("id ASC")
	if opts.Subscribed != nil {
		q = q.Where("subscribed = ?", *opts.Subscribed)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return sources, nil
}

func (svc *Service) RetrieveSource(ctx context.Context, opts RetrieveSourceOptions) (*models.Source, error) {
	source := &models.Source{}

	q := svc.db.
		NewSelect().
		Model(source)
	if opts.ID != nil {
		q = q.Where("s.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Source")
		}
		return nil, errors.WithStack(err)
	}

	return source, nil
}

// SetSubscribed toggles whether the scheduler polls this source.
func (svc *Service) SetSubscribed(ctx context.Context, sourceID string, subscribed bool) error {
	res, err := svc.db.
		NewUpdate().
		Model((*models.Source)(nil)).
		Set("subscribed = ?", subscribed).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", sourceID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if affected == 0 {
		return errcodes.NotFound("Source")
	}
	return nil
}

// MarkFetchedLatests records a successful latest-updates pass.
func (svc *Service) MarkFetchedLatests(ctx context.Context, sourceID string, at time.Time) error {
	_, err := svc.db.
		NewUpdate().
		Model((*models.Source)(nil)).
		Set("last_fetched_latests_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", sourceID).
		Exec(ctx)
	return errors.WithStack(err)
}

// SyncRegistry makes sure every registered adapter has a Source row with the
// adapter's current name and base URL. Existing subscription flags are kept.
func (svc *Service) SyncRegistry(ctx context.Context, registry *Registry) error {
	now := time.Now()
	for _, adapter := range registry.List() {
		source := &models.Source{
			ID:        adapter.ID(),
			CreatedAt: now,
			UpdatedAt: now,
			Name:      adapter.Name(),
			BaseURL:   adapter.BaseURL(),
		}
		_, err := svc.db.
			NewInsert().
			Model(source).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("base_url = EXCLUDED.base_url").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}
