package books

import (
	"github.com/kumoreads/kumo/pkg/unread"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB) {
	bookService := NewService(db)
	unreadService := unread.NewService(db)

	h := &handler{
		bookService:   bookService,
		unreadService: unreadService,
	}

	e.GET("/books", h.list)
	e.GET("/books/:id", h.retrieve)
	e.GET("/books/:id/chapters", h.listChapters)
	e.POST("/books/:id/read", h.markRead)
}
