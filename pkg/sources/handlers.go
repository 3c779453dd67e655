package sources

import (
	"net/http"
	"strconv"

	"github.com/kumoreads/kumo/pkg/errcodes"
	"github.com/kumoreads/kumo/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Refetcher is the slice of the scheduler the operator API needs.
type Refetcher interface {
	ForceRefetch(sourceID string)
}

type handler struct {
	sourceService *Service
	registry      *Registry
	runner        *Runner
	refetcher     Refetcher
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListSourcesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	sources, err := h.sourceService.ListSources(ctx, ListSourcesOptions{
		Subscribed: params.Subscribed,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Sources []*models.Source `json:"sources"`
		Total   int              `json:"total"`
	}{sources, len(sources)}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	// Bind params.
	params := UpdateSourcePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if params.Subscribed != nil {
		if err := h.sourceService.SetSubscribed(ctx, id, *params.Subscribed); err != nil {
			return errors.WithStack(err)
		}
	}

	source, err := h.sourceService.RetrieveSource(ctx, RetrieveSourceOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, source))
}

func (h *handler) refetch(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if _, ok := h.registry.Get(id); !ok {
		return errcodes.NotFound("Source")
	}
	// The row check makes the 404 authoritative even if the adapter exists.
	if _, err := h.sourceService.RetrieveSource(ctx, RetrieveSourceOptions{ID: &id}); err != nil {
		return errors.WithStack(err)
	}

	h.refetcher.ForceRefetch(id)

	return errors.WithStack(c.NoContent(http.StatusAccepted))
}

func (h *handler) chapterPages(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Chapter")
	}

	pages, err := h.runner.EnsureChapterPages(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Pages []models.Page `json:"pages"`
	}{pages}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
