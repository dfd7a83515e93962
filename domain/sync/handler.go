package sync

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/emergent-company/dualstore/pkg/apperror"
)

// Handler handles HTTP requests for the sync coordinator
type Handler struct {
	svc *Service
}

// NewHandler creates a new sync handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// TriggerRequest is the body of POST /api/sync.
type TriggerRequest struct {
	Direction string `json:"direction"`
	BatchSize int    `json:"batchSize"`
	DryRun    bool   `json:"dryRun"`
}

// Trigger handles POST /api/sync
// @Summary      Run one synchronization pass
// @Description  Blocks until the run finishes. A run with errors answers 207 with the full result.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        body body TriggerRequest false "Run options"
// @Success      200 {object} Result
// @Success      207 {object} Result
// @Failure      409 {object} apperror.Error
// @Failure      422 {object} apperror.Error
// @Router       /api/sync [post]
func (h *Handler) Trigger(c echo.Context) error {
	var req TriggerRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	opts := Options{BatchSize: req.BatchSize, DryRun: req.DryRun}
	if req.Direction != "" {
		dir, err := ParseDirection(req.Direction)
		if err != nil {
			return apperror.NewValidation(err.Error())
		}
		opts.Direction = dir
	}
	if req.BatchSize < 0 {
		return apperror.NewValidation("batchSize must not be negative")
	}

	if h.svc.Running() {
		return apperror.ErrConflict.WithMessage(ErrSyncInProgress.Error())
	}

	res := h.svc.Sync(c.Request().Context(), opts)
	if !res.Success {
		return c.JSON(http.StatusMultiStatus, res)
	}
	return c.JSON(http.StatusOK, res)
}

// Stats handles GET /api/sync/stats
// @Summary      Mirror lag and pending counts
// @Tags         sync
// @Produce      json
// @Success      200 {object} Stats
// @Router       /api/sync/stats [get]
func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Stats(c.Request().Context()))
}

// Log handles GET /api/sync/log
// @Summary      Recent sync log rows
// @Tags         sync
// @Produce      json
// @Param        limit query int false "Max rows (default 50, max 500)"
// @Param        runId query string false "Only rows of this run"
// @Success      200 {array} LogEntry
// @Router       /api/sync/log [get]
func (h *Handler) Log(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return apperror.ErrBadRequest.WithMessage("limit must be an integer")
		}
		limit = n
	}

	var runID *uuid.UUID
	if raw := c.QueryParam("runId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperror.ErrBadRequest.WithMessage("runId must be a uuid")
		}
		runID = &id
	}

	entries, err := h.svc.RecentLog(c.Request().Context(), limit, runID)
	if err != nil {
		return apperror.NewInternal("failed to read sync log", err)
	}
	return c.JSON(http.StatusOK, entries)
}
