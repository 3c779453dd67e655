package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kumoreads/kumo/pkg/binder"
	"github.com/kumoreads/kumo/pkg/books"
	"github.com/kumoreads/kumo/pkg/config"
	"github.com/kumoreads/kumo/pkg/errcodes"
	"github.com/kumoreads/kumo/pkg/settings"
	"github.com/kumoreads/kumo/pkg/sources"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"
)

// New builds the operator API server: catalog browsing, source management,
// on-demand chapter pages, and global ingestion settings.
func New(cfg *config.Config, db *bun.DB, registry *sources.Registry, runner *sources.Runner, refetcher sources.Refetcher) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	books.RegisterRoutes(e, db)
	sources.RegisterRoutes(e, db, registry, runner, refetcher)
	settings.RegisterRoutes(e, db)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
