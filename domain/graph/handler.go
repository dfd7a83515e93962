package graph

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/emergent-company/dualstore/pkg/apperror"
)

// Handler handles HTTP requests for graph operations
type Handler struct {
	svc *Service
}

// NewHandler creates a new graph handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Traverse handles POST /api/graph/traverse
// @Summary      Bounded traversal
// @Description  Walks from an entity up to the configured maximum depth
// @Tags         graph
// @Accept       json
// @Produce      json
// @Param        body body TraversalParams true "Traversal request"
// @Success      200 {object} QueryResult
// @Failure      422 {object} apperror.Error
// @Failure      503 {object} apperror.Error
// @Router       /api/graph/traverse [post]
func (h *Handler) Traverse(c echo.Context) error {
	var req TraversalParams
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	result, err := h.svc.Traverse(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

type analyticsRequest struct {
	Parameters map[string]any `json:"parameters"`
	Limit      int            `json:"limit"`
}

// Analytics handles POST /api/graph/analytics/:algorithm
// @Summary      Run a named graph algorithm
// @Tags         graph
// @Accept       json
// @Produce      json
// @Param        algorithm path string true "pagerank | centrality | community_detection | shortest_path"
// @Success      200 {object} QueryResult
// @Failure      400 {object} apperror.Error
// @Failure      422 {object} apperror.Error
// @Router       /api/graph/analytics/{algorithm} [post]
func (h *Handler) Analytics(c echo.Context) error {
	var req analyticsRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	result, err := h.svc.Analytics(c.Request().Context(), AnalyticsParams{
		Algorithm:  Algorithm(c.Param("algorithm")),
		Parameters: req.Parameters,
		Limit:      req.Limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Health handles GET /api/graph/health
// @Summary      Graph store health
// @Tags         graph
// @Produce      json
// @Success      200 {object} HealthStatus
// @Success      503 {object} HealthStatus
// @Router       /api/graph/health [get]
func (h *Handler) Health(c echo.Context) error {
	status := h.svc.HealthCheck(c.Request().Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// EnsureSchema handles POST /api/graph/schema
// @Summary      Create graph constraints and indexes
// @Tags         graph
// @Produce      json
// @Success      200 {object} SchemaReport
// @Router       /api/graph/schema [post]
func (h *Handler) EnsureSchema(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.EnsureSchema(c.Request().Context()))
}
