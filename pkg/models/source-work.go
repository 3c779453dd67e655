package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SourceWork is one source's view of a catalog item, keyed by the source's
// native identifier. Each scalar field carries the accuracy of the extraction
// that produced it; writes are arbitrated by pkg/ingest so accuracy never
// decreases.
type SourceWork struct {
	bun.BaseModel `bun:"table:source_works,alias:sw"`

	SourceID            string    `bun:",pk" json:"source_id"`
	SourceWorkID        string    `bun:",pk" json:"source_work_id"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	URL                 string    `bun:",nullzero" json:"url"`
	Title               string    `bun:",nullzero" json:"title"`
	TitleAccuracy       int       `json:"title_accuracy"`
	Description         *string   `json:"description"`
	DescriptionAccuracy int       `json:"description_accuracy"`
	CoverURL            *string   `json:"cover_url"`
	CoverStorageKey     *string   `json:"cover_storage_key"`
	BookID              *int      `json:"book_id"`

	Source *Source `bun:"rel:belongs-to,join:source_id=id" json:"-"`
	Book   *Book   `bun:"rel:belongs-to,join:book_id=id" json:"book,omitempty"`
}
