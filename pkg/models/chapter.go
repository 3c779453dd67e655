package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Chapter is a unit of content belonging to one (source, source work) pair.
// NativeID is the source's own chapter identifier and is unique within that
// scope. Rank is the ordering value and supports sub-chapters like 12.5;
// cross-source chapter equivalence is inferred by rank, never by native id.
type Chapter struct {
	bun.BaseModel `bun:"table:chapters,alias:ch"`

	ID                  int        `bun:",pk,autoincrement" json:"id"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	SourceID            string     `bun:",notnull" json:"source_id"`
	SourceWorkID        string     `bun:",notnull" json:"source_work_id"`
	NativeID            string     `bun:",notnull" json:"native_id"`
	Rank                float64    `bun:",notnull" json:"rank"`
	Title               string     `bun:",nullzero" json:"title"`
	URL                 string     `bun:",nullzero" json:"url"`
	PublishedAt         *time.Time `json:"published_at"`
	PublishedAtAccuracy int        `json:"published_at_accuracy"`
	Pages               []Page     `bun:",nullzero" json:"pages,omitempty"`

	SourceWork *SourceWork `bun:"rel:belongs-to,join:source_id=source_id,join:source_work_id=source_work_id" json:"-"`
}

// Page is one image of a chapter, either still at its origin URL or already
// copied into object storage.
type Page struct {
	URL        string `json:"url,omitempty"`
	StorageKey string `json:"storage_key,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}
