package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/pkg/apperror"
)

func TestNewEcho_ErrorHandlerAndMiddleware(t *testing.T) {
	e := NewEcho(&config.Config{}, slog.Default())
	e.GET("/boom", func(c echo.Context) error {
		return apperror.ErrConnection.WithMessage("graph store unreachable")
	})
	e.GET("/panic", func(c echo.Context) error {
		panic("kaboom")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom/", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "connection_error", body["error"]["code"])

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, statusLevel(http.StatusOK, nil))
	assert.Equal(t, slog.LevelWarn, statusLevel(http.StatusUnprocessableEntity, nil))
	assert.Equal(t, slog.LevelError, statusLevel(http.StatusServiceUnavailable, nil))
}

func TestNewEcho_BodyLimit(t *testing.T) {
	e := NewEcho(&config.Config{}, slog.Default())
	e.POST("/api/query", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	body := strings.NewReader(strings.Repeat("x", 3<<20))
	req := httptest.NewRequest(http.MethodPost, "/api/query", body)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
