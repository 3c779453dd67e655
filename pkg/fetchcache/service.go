package fetchcache

import (
	"context"
	"database/sql"
	"time"

	"github.com/kumoreads/kumo/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Service stores raw fetched payloads so repeated extraction passes over the
// same page never hit the network twice. Keys are computed by the caller;
// entries never expire and same-key writes overwrite.
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// Get returns the entry for an exact key, or nil when absent.
func (svc *Service) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	entry := &models.CacheEntry{}
	err := svc.db.NewSelect().
		Model(entry).
		Where("ce.key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return entry, nil
}

// GetLatestByURL returns the newest entry for a URL regardless of which hour
// bucket or session it was stored under.
func (svc *Service) GetLatestByURL(ctx context.Context, url string) (*models.CacheEntry, error) {
	entry := &models.CacheEntry{}
	err := svc.db.NewSelect().
		Model(entry).
		Where("ce.key LIKE ?", "%:"+url).
		Order("ce.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return entry, nil
}

// Put upserts the payload for a key.
func (svc *Service) Put(ctx context.Context, key string, body string, statusCode int) error {
	entry := &models.CacheEntry{
		Key:        key,
		CreatedAt:  time.Now(),
		Body:       body,
		StatusCode: statusCode,
	}

	_, err := svc.db.NewInsert().
		Model(entry).
		On("CONFLICT (key) DO UPDATE").
		Set("created_at = EXCLUDED.created_at").
		Set("body = EXCLUDED.body").
		Set("status_code = EXCLUDED.status_code").
		Exec(ctx)
	return errors.WithStack(err)
}
