package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Setting is the single global settings row. Its absence at startup is a
// configuration error and fatal; the initial migration seeds it.
type Setting struct {
	bun.BaseModel `bun:"table:settings,alias:st"`

	ID               int           `bun:",pk" json:"id"`
	UpdatedAt        time.Time     `json:"updated_at"`
	FetchInterval    time.Duration `bun:",notnull" json:"fetch_interval"`
	MinRefetchDelay  time.Duration `bun:",notnull" json:"min_refetch_delay"`
	RetryBackoffBase time.Duration `bun:",notnull" json:"retry_backoff_base"`
	SolverURL        string        `bun:",nullzero" json:"solver_url"`
}
