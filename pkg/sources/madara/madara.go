// Package madara implements a source adapter for sites running the Madara
// WordPress theme. The theme is shared by many aggregator sites, so one
// adapter instance per site covers them all; only the slug, display name, and
// base URL differ.
package madara

import (
	"context"
	"strings"

	"github.com/kumoreads/kumo/pkg/htmlutil"
	"github.com/kumoreads/kumo/pkg/ingest"
	"github.com/kumoreads/kumo/pkg/models"
	"github.com/kumoreads/kumo/pkg/sources"
	"github.com/pkg/errors"
)

type Adapter struct {
	id      string
	name    string
	baseURL string
}

func New(id, name, baseURL string) *Adapter {
	return &Adapter{
		id:      id,
		name:    name,
		baseURL: baseURL,
	}
}

func (a *Adapter) ID() string      { return a.id }
func (a *Adapter) Name() string    { return a.name }
func (a *Adapter) BaseURL() string { return a.baseURL }

func (a *Adapter) FetchLatest(ctx context.Context, run sources.RunContext) error {
	session, err := run.OpenSession(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	page, err := session.Go(ctx, "/manga/?m_orderby=latest")
	if err != nil {
		return errors.WithStack(err)
	}

	result, err := page.Evaluate(latestOp)
	if err != nil {
		return errors.WithStack(err)
	}

	candidates := make([]ingest.WorkCandidate, 0)
	for _, record := range items(result) {
		workURL := str(record, "url")
		workID := workSlug(workURL)
		title := str(record, "title")
		if workID == "" || title == "" {
			continue
		}

		candidate := ingest.WorkCandidate{
			ID:            workID,
			URL:           workURL,
			Title:         title,
			TitleAccuracy: models.AccuracyListing,
			CoverURL:      firstNonEmpty(str(record, "cover_lazy"), str(record, "cover")),
		}

		for _, ch := range items(record["chapters"]) {
			chapterURL := str(ch, "url")
			nativeID := chapterSlug(chapterURL)
			if nativeID == "" {
				continue
			}

			chapter := ingest.ChapterCandidate{
				NativeID: nativeID,
				Rank:     chapterRank(nativeID, str(ch, "title")),
				Title:    str(ch, "title"),
				URL:      chapterURL,
			}
			if published := parseReleaseDate(str(ch, "date")); published != nil {
				chapter.PublishedAt = published
				chapter.PublishedAtAccuracy = models.AccuracyListing
			}
			candidate.Chapters = append(candidate.Chapters, chapter)
		}

		candidates = append(candidates, candidate)
	}

	return errors.WithStack(run.UpsertWorks(ctx, candidates))
}

func (a *Adapter) FetchWorkDetails(ctx context.Context, run sources.RunContext, workID string) error {
	session, err := run.OpenSession(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	page, err := session.Go(ctx, "/manga/"+workID+"/")
	if err != nil {
		return errors.WithStack(err)
	}

	result, err := page.Evaluate(detailsOp)
	if err != nil {
		return errors.WithStack(err)
	}
	record, ok := result.(map[string]any)
	if !ok {
		return errors.New("details extraction did not produce a record")
	}

	candidate := ingest.WorkCandidate{
		ID:       workID,
		URL:      page.URL(),
		CoverURL: firstNonEmpty(str(record, "cover_lazy"), str(record, "cover")),
	}
	if title := str(record, "title"); title != "" {
		candidate.Title = title
		candidate.TitleAccuracy = models.AccuracyDetails
	}
	// Descriptions are user-supplied rich text and frequently double-encoded,
	// so each paragraph goes through entity and whitespace normalization.
	paragraphs := []string{}
	for _, p := range items(record["description"]) {
		if text := htmlutil.StripTags(str(p, "text")); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	if len(paragraphs) > 0 {
		candidate.Description = strings.Join(paragraphs, "\n")
		candidate.DescriptionAccuracy = models.AccuracyDetails
	}

	for _, ch := range items(record["chapters"]) {
		chapterURL := str(ch, "url")
		nativeID := chapterSlug(chapterURL)
		if nativeID == "" {
			continue
		}

		chapter := ingest.ChapterCandidate{
			NativeID: nativeID,
			Rank:     chapterRank(nativeID, str(ch, "title")),
			Title:    str(ch, "title"),
			URL:      chapterURL,
		}
		if published := parseReleaseDate(str(ch, "date")); published != nil {
			chapter.PublishedAt = published
			chapter.PublishedAtAccuracy = models.AccuracyDetails
		}
		candidate.Chapters = append(candidate.Chapters, chapter)
	}

	return errors.WithStack(run.UpsertWorks(ctx, []ingest.WorkCandidate{candidate}))
}

func (a *Adapter) FetchChapterPages(ctx context.Context, run sources.RunContext, workID string, chapterNativeID string) ([]models.Page, error) {
	session, err := run.OpenSession(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	page, err := session.Go(ctx, "/manga/"+workID+"/"+chapterNativeID+"/")
	if err != nil {
		return nil, errors.WithStack(err)
	}

	result, err := page.Evaluate(pagesOp)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	pages := make([]models.Page, 0)
	for _, record := range items(result) {
		src := firstNonEmpty(str(record, "src_lazy"), str(record, "src"))
		if src == "" {
			continue
		}
		pages = append(pages, models.Page{URL: src})
	}

	return pages, nil
}
