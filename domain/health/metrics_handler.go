package health

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emergent-company/dualstore/pkg/storehealth"
)

// MetricsHandler serves Prometheus metrics and the raw health snapshot
type MetricsHandler struct {
	monitor storehealth.Monitor
	prom    http.Handler
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(monitor storehealth.Monitor) *MetricsHandler {
	return &MetricsHandler{
		monitor: monitor,
		prom:    promhttp.Handler(),
	}
}

// Prometheus handles GET /metrics
func (h *MetricsHandler) Prometheus(c echo.Context) error {
	h.prom.ServeHTTP(c.Response(), c.Request())
	return nil
}

// StoreMetrics returns the latest store health snapshot
// @Summary      Latest store health snapshot
// @Tags         health
// @Produce      json
// @Success      200 {object} storehealth.Snapshot
// @Success      204 "No snapshot collected yet"
// @Router       /api/metrics/stores [get]
func (h *MetricsHandler) StoreMetrics(c echo.Context) error {
	snap := h.monitor.Snapshot()
	if snap == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, snap)
}
