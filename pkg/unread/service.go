package unread

import (
	"context"
	"time"

	"github.com/kumoreads/kumo/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Service maintains the cached unread counter on books. Chapters from
// different sources are considered the same release when they share a rank,
// so the counter is over distinct ranks, not rows.
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// OnBookChaptersChanged recomputes the book's unread counter. Called by the
// reconciliation layer whenever a linked book gains chapters and by the
// books API when the read marker moves.
func (svc *Service) OnBookChaptersChanged(ctx context.Context, bookID int) error {
	book := &models.Book{}
	err := svc.db.NewSelect().
		Model(book).
		Column("b.id", "b.read_through_rank").
		Where("b.id = ?", bookID).
		Scan(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	var count int
	err = svc.db.NewSelect().
		Model((*models.Chapter)(nil)).
		ColumnExpr("count(DISTINCT ch.rank)").
		Join("JOIN source_works AS sw ON sw.source_id = ch.source_id AND sw.source_work_id = ch.source_work_id").
		Where("sw.book_id = ?", bookID).
		Where("ch.rank > ?", book.ReadThroughRank).
		Scan(ctx, &count)
	if err != nil {
		return errors.WithStack(err)
	}

	_, err = svc.db.NewUpdate().
		Model((*models.Book)(nil)).
		Set("unread_chapters = ?", count).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", bookID).
		Exec(ctx)
	return errors.WithStack(err)
}

// MarkReadThrough moves the book's read marker and recomputes the counter.
func (svc *Service) MarkReadThrough(ctx context.Context, bookID int, rank float64) error {
	_, err := svc.db.NewUpdate().
		Model((*models.Book)(nil)).
		Set("read_through_rank = ?", rank).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", bookID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return svc.OnBookChaptersChanged(ctx, bookID)
}
