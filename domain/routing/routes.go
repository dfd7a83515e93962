package routing

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers query routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/query")
	g.POST("", h.Query)
	g.POST("/route", h.Route)
}
