package routing

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/dualstore/domain/search"
	"github.com/emergent-company/dualstore/pkg/apperror"
	"github.com/emergent-company/dualstore/pkg/storehealth"
)

func newTestEcho(svc *Service) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(slog.Default())
	RegisterRoutes(e, NewHandler(svc))
	return e
}

func post(e *echo.Echo, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Route(t *testing.T) {
	e := newTestEcho(newTestService(&mockGraph{}, &mockVector{}, healthySnapshot(true, true)))

	rec := post(e, "/api/query/route", `{"text":"who is connected to Ada","hints":{"entityIds":["a","b"]}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var d Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, ComplexityComplexGraph, d.Complexity)
	assert.Equal(t, StrategyGraphOnly, d.Strategy)
	assert.Equal(t, StoreGraph, d.PrimaryStore)
}

func TestHandler_Query(t *testing.T) {
	v := &mockVector{}
	v.On("SimilaritySearch", mock.Anything, mock.Anything).
		Return(&search.Result{Chunks: []search.ChunkHit{{ID: "c1", Text: "hello", Similarity: 0.88}}}, nil)
	e := newTestEcho(newTestService(&mockGraph{}, v, healthySnapshot(true, true)))

	rec := post(e, "/api/query", `{"embedding":[0.1,0.2],"limit":3}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.ResultCount)
	assert.Equal(t, "hello", resp.Items[0].Label)
}

func TestHandler_QueryDegraded(t *testing.T) {
	e := newTestEcho(newTestService(&mockGraph{}, &mockVector{}, &storehealth.Snapshot{}))

	rec := post(e, "/api/query", `{"text":"anything","embedding":[1]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded_routing")
}

func TestHandler_BadBody(t *testing.T) {
	e := newTestEcho(newTestService(&mockGraph{}, &mockVector{}, healthySnapshot(true, true)))

	rec := post(e, "/api/query", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
