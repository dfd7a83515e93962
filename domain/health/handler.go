package health

import (
	"net/http"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/internal/version"
	"github.com/emergent-company/dualstore/pkg/storehealth"
)

// Handler handles health check requests
type Handler struct {
	monitor storehealth.Monitor
	pool    *pgxpool.Pool
	cfg     *config.Config
	startAt time.Time
}

// NewHandler creates a new health handler
func NewHandler(monitor storehealth.Monitor, pool *pgxpool.Pool, cfg *config.Config) *Handler {
	return &Handler{
		monitor: monitor,
		pool:    pool,
		cfg:     cfg,
		startAt: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Stale     bool             `json:"stale"`
	Checks    map[string]Check `json:"checks"`
}

// Check represents an individual store's health
type Check struct {
	Status    string           `json:"status"`
	Zone      storehealth.Zone `json:"zone"`
	LatencyMs float64          `json:"latencyMs"`
	Message   string           `json:"message,omitempty"`
	CheckedAt *time.Time       `json:"checkedAt,omitempty"`
}

// Overall statuses. Degraded means one store is down and queries are
// answered from the other.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

func (h *Handler) report() HealthResponse {
	snap := h.monitor.Snapshot()

	checks := make(map[string]Check, 2)
	up := 0
	for _, name := range []string{StoreVector, StoreGraph} {
		st := snap.Store(name)
		c := Check{
			Status:    statusUnhealthy,
			Zone:      st.Zone,
			LatencyMs: st.LatencyMs,
			Message:   st.Error,
		}
		if st.Healthy {
			c.Status = statusHealthy
			up++
		}
		if !st.CheckedAt.IsZero() {
			at := st.CheckedAt
			c.CheckedAt = &at
		}
		checks[name] = c
	}

	status := statusHealthy
	switch up {
	case 0:
		status = statusUnhealthy
	case 1:
		status = statusDegraded
	}

	return HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startAt).String(),
		Version:   version.Current().Version,
		Stale:     snap == nil || snap.Stale,
		Checks:    checks,
	}
}

// Health returns the health of both stores from the latest monitor snapshot
// @Summary      Get service health
// @Description  Both stores down answers 503; one store down reports degraded with 200
// @Tags         health
// @Produce      json
// @Success      200 {object} HealthResponse "Service is healthy or degraded"
// @Success      503 {object} HealthResponse "Service is unhealthy"
// @Router       /health [get]
func (h *Handler) Health(c echo.Context) error {
	resp := h.report()
	code := http.StatusOK
	if resp.Status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

// Healthz returns a simple health check (for k8s liveness probe)
// @Summary      Liveness probe
// @Tags         health
// @Produce      plain
// @Success      200 {string} string "OK"
// @Router       /healthz [get]
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Ready returns readiness status (for k8s readiness probe). The relational
// store holds the sync log and every mirror's source, so it gates readiness.
// @Summary      Readiness probe
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]any "Service is ready"
// @Success      503 {object} map[string]any "Service is not ready"
// @Router       /ready [get]
func (h *Handler) Ready(c echo.Context) error {
	snap := h.monitor.Snapshot()
	if snap == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":  "not_ready",
			"message": "no health data yet",
		})
	}
	if st := snap.Store(StoreVector); !st.Healthy {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":  "not_ready",
			"message": "relational store unavailable: " + st.Error,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ready",
		"graph":  snap.Store(StoreGraph).Healthy,
	})
}

// Debug returns debug information (only outside production)
// @Summary      Get debug information
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]any "Debug information"
// @Failure      404 {object} map[string]any "Not found in production"
// @Router       /debug [get]
func (h *Handler) Debug(c echo.Context) error {
	if h.cfg.Environment == "production" {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	out := map[string]any{
		"environment": h.cfg.Environment,
		"debug":       h.cfg.Debug,
		"build":       version.Current(),
		"goroutines":  runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc_mb":       mem.Alloc / 1024 / 1024,
			"total_alloc_mb": mem.TotalAlloc / 1024 / 1024,
			"sys_mb":         mem.Sys / 1024 / 1024,
			"num_gc":         mem.NumGC,
		},
		"graph": map[string]any{
			"uri":      h.cfg.Graph.URI,
			"database": h.cfg.Graph.Database,
		},
	}
	if h.pool != nil {
		stat := h.pool.Stat()
		out["database"] = map[string]any{
			"host":        h.cfg.Database.Host,
			"port":        h.cfg.Database.Port,
			"database":    h.cfg.Database.Database,
			"pool_total":  stat.TotalConns(),
			"pool_idle":   stat.IdleConns(),
			"pool_in_use": stat.AcquiredConns(),
		}
	}
	return c.JSON(http.StatusOK, out)
}
