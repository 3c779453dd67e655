package sources

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB, registry *Registry, runner *Runner, refetcher Refetcher) {
	sourceService := NewService(db)

	h := &handler{
		sourceService: sourceService,
		registry:      registry,
		runner:        runner,
		refetcher:     refetcher,
	}

	e.GET("/sources", h.list)
	e.POST("/sources/:id", h.update)
	e.POST("/sources/:id/refetch", h.refetch)
	e.GET("/chapters/:id/pages", h.chapterPages)
}
