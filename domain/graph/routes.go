package graph

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers graph routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/graph")
	g.POST("/traverse", h.Traverse)
	g.POST("/analytics/:algorithm", h.Analytics)
	g.GET("/health", h.Health)
	g.POST("/schema", h.EnsureSchema)
}
