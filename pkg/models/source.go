package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Source is an external site we ingest catalog data from, identified by a
// stable slug that doubles as the adapter registry key.
type Source struct {
	bun.BaseModel `bun:"table:sources,alias:s"`

	ID                   string     `bun:",pk" json:"id"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	Name                 string     `bun:",nullzero" json:"name"`
	BaseURL              string     `bun:",nullzero" json:"base_url"`
	Subscribed           bool       `json:"subscribed"`
	LastFetchedLatestsAt *time.Time `json:"last_fetched_latests_at"`
}
