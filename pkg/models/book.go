package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Book is the canonical, cross-source catalog entity. It is created lazily
// the first time a SourceWork has no canonical link, seeded from that
// SourceWork's current title and cover. Books are never merged afterwards.
type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID              int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Title           string    `bun:",nullzero" json:"title"`
	SortTitle       string    `bun:",nullzero" json:"sort_title"`
	CoverStorageKey *string   `json:"cover_storage_key"`
	UnreadChapters  int       `json:"unread_chapters"`
	ReadThroughRank float64   `json:"read_through_rank"`

	SourceWorks []*SourceWork `bun:"rel:has-many,join:id=book_id" json:"source_works,omitempty"`
}
