package books

import (
	"context"
	"database/sql"

	"github.com/kumoreads/kumo/pkg/errcodes"
	"github.com/kumoreads/kumo/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveBookOptions struct {
	ID *int
}

type ListBooksOptions struct {
	Limit      *int
	Offset     *int
	Search     *string
	UnreadOnly bool
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error) {
	book := &models.Book{}

	q := svc.db.
		NewSelect().
		Model(book).
		Relation("SourceWorks")
	if opts.ID != nil {
		q = q.Where("b.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

func (svc *Service) ListBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	books := []*models.Book{}

	q := svc.db.
		NewSelect().
		Model(&books).
		Relation("SourceWorks").
		Order("sort_title ASC", "title ASC")
	if opts.Search != nil && *opts.Search != "" {
		q = q.Where("title LIKE ?", "%"+*opts.Search+"%")
	}
	if opts.UnreadOnly {
		q = q.Where("unread_chapters > 0")
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return books, total, nil
}

// ListBookChapters returns the book's chapters across all linked source
// works, ordered by rank so cross-source duplicates sit next to each other.
func (svc *Service) ListBookChapters(ctx context.Context, bookID int) ([]*models.Chapter, error) {
	chapters := []*models.Chapter{}

	err := svc.db.
		NewSelect().
		Model(&chapters).
		Join("JOIN source_works AS sw ON sw.source_id = ch.source_id AND sw.source_work_id = ch.source_work_id").
		Where("sw.book_id = ?", bookID).
		Order("rank ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return chapters, nil
}
