package models

import (
	"time"

	"github.com/uptrace/bun"
)

// FetchSession is a persisted browsing identity (cookies plus user agent)
// reused across fetches to the same source. The id defaults to the source
// slug. A missing row forces a challenge-solving bootstrap on the next fetch.
type FetchSession struct {
	bun.BaseModel `bun:"table:fetch_sessions,alias:fs"`

	ID        string    `bun:",pk" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserAgent string    `bun:",nullzero" json:"user_agent"`
	Cookies   []Cookie  `bun:",nullzero" json:"cookies"`
}

// Cookie is the subset of cookie attributes the challenge solver hands back
// and that we replay on direct fetches.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}
