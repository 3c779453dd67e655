package ingest

import (
	"time"

	"github.com/kumoreads/kumo/pkg/models"
)

// WorkCandidate is an adapter's extracted view of one catalog item, ready to
// be reconciled against stored state. ID is the source's native identifier.
type WorkCandidate struct {
	ID                  string
	URL                 string
	Title               string
	TitleAccuracy       int
	Description         string
	DescriptionAccuracy int
	CoverURL            string
	Chapters            []ChapterCandidate
}

// ChapterCandidate is an extracted chapter. NativeID identifies it within
// its work; Rank orders it and may carry sub-chapter fractions.
type ChapterCandidate struct {
	NativeID            string
	Rank                float64
	Title               string
	URL                 string
	PublishedAt         *time.Time
	PublishedAtAccuracy int
	Pages               []models.Page
}
