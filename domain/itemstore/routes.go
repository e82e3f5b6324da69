package itemstore

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers the item routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	g := e.Group("/api/items")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Patch)
	g.POST("/:id/recycle", h.Recycle)
	g.POST("/:id/restore", h.Restore)
}
