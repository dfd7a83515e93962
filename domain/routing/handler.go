package routing

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/emergent-company/dualstore/pkg/apperror"
)

// Handler handles HTTP requests for query routing
type Handler struct {
	svc *Service
}

// NewHandler creates a new routing handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Route handles POST /api/query/route
// @Summary      Classify and route a query without executing it
// @Tags         query
// @Accept       json
// @Produce      json
// @Param        body body Query true "Query"
// @Success      200 {object} Decision
// @Router       /api/query/route [post]
func (h *Handler) Route(c echo.Context) error {
	var q Query
	if err := c.Bind(&q); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	return c.JSON(http.StatusOK, h.svc.Route(c.Request().Context(), q))
}

// Query handles POST /api/query
// @Summary      Route and execute a query
// @Tags         query
// @Accept       json
// @Produce      json
// @Param        body body Query true "Query"
// @Success      200 {object} Response
// @Failure      422 {object} apperror.Error
// @Failure      503 {object} apperror.Error
// @Router       /api/query [post]
func (h *Handler) Query(c echo.Context) error {
	var q Query
	if err := c.Bind(&q); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	resp, err := h.svc.Query(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}
