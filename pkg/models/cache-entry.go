package models

import (
	"time"

	"github.com/uptrace/bun"
)

// CacheEntry is a raw fetched payload. Keys are computed by the fetch layer
// as either {hourBucketMillis}:{url} or {sessionID}:{url}; writes for the
// same key overwrite and entries never expire on their own.
type CacheEntry struct {
	bun.BaseModel `bun:"table:cache_entries,alias:ce"`

	Key        string    `bun:",pk" json:"key"`
	CreatedAt  time.Time `json:"created_at"`
	Body       string    `bun:",nullzero" json:"body"`
	StatusCode int       `json:"status_code"`
}
