package pictures

import (
	"context"
	"net/url"
	"path"
	"time"

	"github.com/kumoreads/kumo/pkg/fetchsession"
	"github.com/kumoreads/kumo/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

const coverBucket = "covers"

// Service copies origin images into our own storage so reader traffic never
// hits the source sites. It implements the reconciliation layer's
// CoverFetcher contract.
type Service struct {
	db       *bun.DB
	sessions *fetchsession.Manager
	uploader Uploader
}

func NewService(db *bun.DB, sessions *fetchsession.Manager, uploader Uploader) *Service {
	return &Service{
		db:       db,
		sessions: sessions,
		uploader: uploader,
	}
}

// FetchCover downloads the work's cover through the source's session and
// stores it, recording the storage key on the work and on its linked book.
func (svc *Service) FetchCover(ctx context.Context, work *models.SourceWork) error {
	if work.CoverURL == nil || *work.CoverURL == "" {
		return nil
	}

	source := &models.Source{}
	err := svc.db.NewSelect().Model(source).Where("s.id = ?", work.SourceID).Scan(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	session, err := svc.sessions.OpenSession(ctx, fetchsession.OpenSessionOptions{
		ID:      work.SourceID,
		BaseURL: source.BaseURL,
	})
	if err != nil {
		return err
	}

	data, err := session.Download(ctx, *work.CoverURL)
	if err != nil {
		return err
	}

	key := work.SourceID + "/" + work.SourceWorkID + coverExtension(*work.CoverURL)
	ref, err := svc.uploader.Upload(ctx, coverBucket, key, data)
	if err != nil {
		return err
	}

	now := time.Now()
	work.CoverStorageKey = &ref.Key
	_, err = svc.db.NewUpdate().
		Model(work).
		Set("cover_storage_key = ?", ref.Key).
		Set("updated_at = ?", now).
		Where("source_id = ?", work.SourceID).
		Where("source_work_id = ?", work.SourceWorkID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	if work.BookID != nil {
		_, err = svc.db.NewUpdate().
			Model((*models.Book)(nil)).
			Set("cover_storage_key = ?", ref.Key).
			Set("updated_at = ?", now).
			Where("id = ?", *work.BookID).
			Where("cover_storage_key IS NULL").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}

// coverExtension keeps the origin file extension when it looks like an image
// extension and falls back to .jpg otherwise.
func coverExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".jpg"
	}
	switch ext := path.Ext(u.Path); ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif":
		return ext
	default:
		return ".jpg"
	}
}
