package settings

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB) {
	settingService := NewService(db)

	h := &handler{
		settingService: settingService,
	}

	e.GET("/settings", h.retrieve)
	e.POST("/settings", h.update)
}
