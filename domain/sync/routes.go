package sync

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers sync routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/sync")
	g.POST("", h.Trigger)
	g.GET("/stats", h.Stats)
	g.GET("/log", h.Log)
}
