package routing

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/dualstore/domain/graph"
	"github.com/emergent-company/dualstore/domain/search"
	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/pkg/apperror"
	"github.com/emergent-company/dualstore/pkg/storehealth"
)

type mockGraph struct{ mock.Mock }

func (m *mockGraph) Traverse(ctx context.Context, p graph.TraversalParams) (*graph.QueryResult, error) {
	args := m.Called(ctx, p)
	res, _ := args.Get(0).(*graph.QueryResult)
	return res, args.Error(1)
}

func (m *mockGraph) SimilarityFallback(ctx context.Context, p graph.SimilarityParams) (*graph.QueryResult, error) {
	args := m.Called(ctx, p)
	res, _ := args.Get(0).(*graph.QueryResult)
	return res, args.Error(1)
}

func (m *mockGraph) Analytics(ctx context.Context, p graph.AnalyticsParams) (*graph.QueryResult, error) {
	args := m.Called(ctx, p)
	res, _ := args.Get(0).(*graph.QueryResult)
	return res, args.Error(1)
}

func (m *mockGraph) EntityContext(ctx context.Context, ids []string, limit int) (*graph.QueryResult, error) {
	args := m.Called(ctx, ids, limit)
	res, _ := args.Get(0).(*graph.QueryResult)
	return res, args.Error(1)
}

type mockVector struct{ mock.Mock }

func (m *mockVector) SimilaritySearch(ctx context.Context, p search.SimilarityParams) (*search.Result, error) {
	args := m.Called(ctx, p)
	res, _ := args.Get(0).(*search.Result)
	return res, args.Error(1)
}

func (m *mockVector) EntityLookup(ctx context.Context, id string) (*search.Entity, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*search.Entity)
	return res, args.Error(1)
}

func (m *mockVector) EntitySimilarity(ctx context.Context, p search.SimilarityParams) (*search.Result, error) {
	args := m.Called(ctx, p)
	res, _ := args.Get(0).(*search.Result)
	return res, args.Error(1)
}

type staticHealth struct{ snap *storehealth.Snapshot }

func (s staticHealth) Snapshot() *storehealth.Snapshot { return s.snap }

func healthySnapshot(vector, graph bool) *storehealth.Snapshot {
	status := func(ok bool, latency float64) storehealth.Status {
		if !ok {
			return storehealth.Status{LatencyMs: -1, Zone: storehealth.ZoneCritical}
		}
		return storehealth.Status{Healthy: true, LatencyMs: latency, Zone: storehealth.ZoneSafe}
	}
	return &storehealth.Snapshot{
		Stores: map[string]storehealth.Status{
			"vector": status(vector, 10),
			"graph":  status(graph, 25),
		},
		Timestamp: time.Now(),
	}
}

type countingCache struct {
	entries map[string]Decision
	sets    int
}

func (c *countingCache) Get(_ context.Context, key string) (Decision, bool) {
	d, ok := c.entries[key]
	return d, ok
}

func (c *countingCache) Set(_ context.Context, key string, d Decision) {
	c.entries[key] = d
	c.sets++
}

func testConfig() *config.Config {
	return &config.Config{Routing: config.RoutingConfig{
		DefaultLimit:     10,
		MaxResultLimit:   100,
		DefaultThreshold: 0.7,
	}}
}

func newTestService(g GraphStore, v VectorStore, snap *storehealth.Snapshot) *Service {
	return NewService(g, v, staticHealth{snap}, DefaultRegistry(), nil, testConfig(), slog.Default())
}

func entityNode(id string, centrality float64) graph.Node {
	return graph.Node{
		ID:         "4:db:" + id,
		Labels:     []string{"Entity"},
		Properties: map[string]any{"id": id, "name": "name-" + id, "centrality_score": centrality},
	}
}

func traversalResult(ends ...graph.Node) *graph.QueryResult {
	start := entityNode("start", 0)
	res := &graph.QueryResult{}
	for _, end := range ends {
		res.Paths = append(res.Paths, graph.Path{
			Start:  start,
			End:    end,
			Length: 1,
			Segments: []graph.Segment{{
				Start:        start,
				End:          end,
				Relationship: graph.Relationship{ID: "r-" + end.ID, Type: "RELATED_TO"},
			}},
		})
	}
	return res
}

func TestRoute_UsesCache(t *testing.T) {
	cache := &countingCache{entries: map[string]Decision{}}
	svc := NewService(&mockGraph{}, &mockVector{}, staticHealth{healthySnapshot(true, true)}, DefaultRegistry(), cache, testConfig(), slog.Default())
	q := Query{Text: "ada", Hints: Hints{EntityIDs: []string{"e1"}}}

	first := svc.Route(context.Background(), q)
	second := svc.Route(context.Background(), q)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, StrategyVectorPrimaryGraphBridge, first.Strategy)
}

func TestRoute_HealthChangeBypassesCache(t *testing.T) {
	cache := &countingCache{entries: map[string]Decision{}}
	health := &staticHealth{healthySnapshot(true, true)}
	svc := NewService(&mockGraph{}, &mockVector{}, health, DefaultRegistry(), cache, testConfig(), slog.Default())
	q := Query{Hints: Hints{RequestedHopCount: hops(1), EntityIDs: []string{"e1"}}}

	assert.Equal(t, StrategyGraphOnly, svc.Route(context.Background(), q).Strategy)

	health.snap = healthySnapshot(true, false)
	d := svc.Route(context.Background(), q)
	assert.True(t, d.Degraded)
	assert.Equal(t, 2, cache.sets)
}

func TestRoute_StaleSnapshotNotCached(t *testing.T) {
	cache := &countingCache{entries: map[string]Decision{}}
	snap := healthySnapshot(true, true)
	snap.Stale = true
	svc := NewService(&mockGraph{}, &mockVector{}, staticHealth{snap}, DefaultRegistry(), cache, testConfig(), slog.Default())

	svc.Route(context.Background(), Query{Text: "hello"})
	assert.Zero(t, cache.sets)
}

func TestExecute_VectorOnly(t *testing.T) {
	v := &mockVector{}
	v.On("SimilaritySearch", mock.Anything, search.SimilarityParams{Embedding: []float32{0.1}, Limit: 10, Threshold: 0.7}).
		Return(&search.Result{Chunks: []search.ChunkHit{{ID: "c1", Similarity: 0.9}, {ID: "c2", Similarity: 0.8}}}, nil)
	svc := newTestService(&mockGraph{}, v, healthySnapshot(true, true))

	resp, err := svc.Query(context.Background(), Query{Embedding: []float32{0.1}})
	require.NoError(t, err)

	assert.Equal(t, StrategyVectorOnly, resp.Decision.Strategy)
	assert.Equal(t, 2, resp.ResultCount)
	assert.Equal(t, "c1", resp.Items[0].ID)
	assert.Equal(t, KindChunk, resp.Items[0].Kind)
	v.AssertExpectations(t)
}

func TestExecute_VectorOnlyNeedsInput(t *testing.T) {
	svc := newTestService(&mockGraph{}, &mockVector{}, healthySnapshot(true, true))

	_, err := svc.Query(context.Background(), Query{Text: "no embedding"})
	assert.True(t, apperror.Is(err, apperror.ErrValidation))
}

func TestExecute_VectorDownUsesCentralityFallback(t *testing.T) {
	g := &mockGraph{}
	g.On("SimilarityFallback", mock.Anything, mock.MatchedBy(func(p graph.SimilarityParams) bool {
		return p.Limit == 5 && p.Threshold == 0.7
	})).Return(&graph.QueryResult{
		Nodes:    []graph.Node{entityNode("e1", 0.4)},
		Records:  []map[string]any{{"score": 0.4}},
		Metadata: graph.Metadata{Approximate: true},
	}, nil)
	svc := newTestService(g, &mockVector{}, healthySnapshot(false, true))

	resp, err := svc.Query(context.Background(), Query{Embedding: []float32{1}, Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, StrategyGraphOnly, resp.Decision.Strategy)
	require.NotNil(t, resp.Graph)
	assert.True(t, resp.Graph.Metadata.Approximate)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "e1", resp.Items[0].ID)
	assert.Equal(t, 0.4, resp.Items[0].RawScore)
	g.AssertExpectations(t)
}

func TestExecute_RelationshipTraversal(t *testing.T) {
	g := &mockGraph{}
	g.On("Traverse", mock.Anything, graph.TraversalParams{
		StartEntityID:     "e1",
		MaxDepth:          2,
		RelationshipTypes: []string{"WORKS_WITH"},
		Limit:             10,
	}).Return(traversalResult(entityNode("e2", 0.5), entityNode("e3", 0.1)), nil)
	svc := newTestService(g, &mockVector{}, healthySnapshot(true, true))

	resp, err := svc.Query(context.Background(), Query{Hints: Hints{
		RequestedHopCount: hops(2),
		EntityIDs:         []string{"e1"},
		RelationshipTypes: []string{"WORKS_WITH"},
	}})
	require.NoError(t, err)

	assert.Equal(t, ComplexityRelationshipQuery, resp.Decision.Complexity)
	assert.Equal(t, []string{"e2", "e3"}, []string{resp.Items[0].ID, resp.Items[1].ID})
	g.AssertExpectations(t)
}

func TestExecute_TraversalRequiresEntity(t *testing.T) {
	svc := newTestService(&mockGraph{}, &mockVector{}, healthySnapshot(true, true))

	_, err := svc.Query(context.Background(), Query{Hints: Hints{RequestedHopCount: hops(1)}})
	assert.True(t, apperror.Is(err, apperror.ErrValidation))
}

func TestExecute_CommunityDetection(t *testing.T) {
	g := &mockGraph{}
	g.On("Analytics", mock.Anything, mock.MatchedBy(func(p graph.AnalyticsParams) bool {
		return p.Algorithm == graph.AlgorithmCommunityDetection
	})).Return(&graph.QueryResult{
		Nodes:   []graph.Node{entityNode("e1", 0)},
		Records: []map[string]any{{"communityId": int64(4)}},
	}, nil)
	svc := newTestService(g, &mockVector{}, healthySnapshot(true, true))

	resp, err := svc.Query(context.Background(), Query{Text: "find communities"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ResultCount)
	g.AssertExpectations(t)
}

func TestExecute_ShortestPathBetweenEntities(t *testing.T) {
	g := &mockGraph{}
	g.On("Analytics", mock.Anything, mock.MatchedBy(func(p graph.AnalyticsParams) bool {
		return p.Algorithm == graph.AlgorithmShortestPath &&
			p.Parameters["startNodeId"] == "a" && p.Parameters["endNodeId"] == "b"
	})).Return(traversalResult(entityNode("b", 0.2)), nil)
	svc := newTestService(g, &mockVector{}, healthySnapshot(true, true))

	resp, err := svc.Query(context.Background(), Query{
		Text:  "shortest path between them",
		Hints: Hints{EntityIDs: []string{"a", "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Items[0].ID)
	g.AssertExpectations(t)
}

func TestExecute_GraphDownReturnsDegradedError(t *testing.T) {
	g := &mockGraph{}
	svc := newTestService(g, &mockVector{}, healthySnapshot(true, false))

	resp, err := svc.Query(context.Background(), Query{Hints: Hints{RequestedHopCount: hops(1), EntityIDs: []string{"e1"}}})
	assert.Nil(t, resp)
	require.True(t, apperror.Is(err, apperror.ErrDegradedRouting))

	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Message, "graph unavailable")
	assert.IsType(t, Decision{}, appErr.Details["decision"])
	g.AssertNotCalled(t, "Traverse", mock.Anything, mock.Anything)
}

func TestExecute_BridgeEnrichesEntities(t *testing.T) {
	v := &mockVector{}
	v.On("EntityLookup", mock.Anything, "e1").Return(&search.Entity{ID: "e1", Name: "Ada"}, nil)
	g := &mockGraph{}
	g.On("EntityContext", mock.Anything, []string{"e1"}, 10).
		Return(traversalResult(entityNode("e7", 0.3)), nil)
	svc := newTestService(g, v, healthySnapshot(true, true))

	resp, err := svc.Query(context.Background(), Query{Hints: Hints{EntityIDs: []string{"e1"}}})
	require.NoError(t, err)

	assert.Equal(t, StrategyVectorPrimaryGraphBridge, resp.Decision.Strategy)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "e1", resp.Items[0].ID)
	assert.Equal(t, StoreGraph, resp.Items[1].Source)
	assert.Empty(t, resp.Warnings)
}

func TestExecute_BridgeGraphFailureIsWarning(t *testing.T) {
	v := &mockVector{}
	v.On("EntityLookup", mock.Anything, "e1").Return(&search.Entity{ID: "e1", Name: "Ada"}, nil)
	g := &mockGraph{}
	g.On("EntityContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, apperror.ErrConnection)
	svc := newTestService(g, v, healthySnapshot(true, true))

	resp, err := svc.Query(context.Background(), Query{Hints: Hints{EntityIDs: []string{"e1"}}})
	require.NoError(t, err)
	assert.Len(t, resp.Items, 1)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "graph enrichment failed")
}

func TestExecute_BridgeMissingEntityIsWarning(t *testing.T) {
	v := &mockVector{}
	v.On("EntityLookup", mock.Anything, "ghost").Return(nil, apperror.NewNotFound("entity", "ghost"))
	svc := newTestService(&mockGraph{}, v, healthySnapshot(true, true))

	resp, err := svc.Query(context.Background(), Query{Hints: Hints{EntityIDs: []string{"ghost"}}})
	require.NoError(t, err)
	assert.Zero(t, resp.ResultCount)
	assert.Equal(t, []string{"entity ghost not found"}, resp.Warnings)
}

func TestExecute_GraphPrimaryFallsBackOnConnectionError(t *testing.T) {
	g := &mockGraph{}
	g.On("EntityContext", mock.Anything, []string{"e1"}, 10).Return(nil, apperror.ErrConnection)
	v := &mockVector{}
	v.On("EntityLookup", mock.Anything, "e1").Return(&search.Entity{ID: "e1", Name: "Ada"}, nil)
	svc := newTestService(g, v, healthySnapshot(true, true))

	fallback := StoreVector
	d := Decision{
		Strategy:      StrategyGraphPrimaryVectorFallback,
		PrimaryStore:  StoreGraph,
		FallbackStore: &fallback,
		Complexity:    ComplexityEntityLookup,
	}
	resp, err := svc.Execute(context.Background(), d, Query{Hints: Hints{EntityIDs: []string{"e1"}}})
	require.NoError(t, err)

	assert.Equal(t, "e1", resp.Items[0].ID)
	assert.Contains(t, resp.Warnings, "graph store failed, answered from the vector store")
}

func TestExecute_HybridFusesBothStores(t *testing.T) {
	v := &mockVector{}
	v.On("EntityLookup", mock.Anything, "e1").Return(&search.Entity{ID: "e1", Name: "Ada"}, nil)
	v.On("SimilaritySearch", mock.Anything, mock.Anything).Return(&search.Result{Chunks: []search.ChunkHit{
		{ID: "c1", Similarity: 0.95},
		{ID: "c2", Similarity: 0.75},
	}}, nil)
	g := &mockGraph{}
	g.On("Traverse", mock.Anything, mock.MatchedBy(func(p graph.TraversalParams) bool {
		return p.StartEntityID == "e1" && p.MaxDepth == 1
	})).Return(traversalResult(entityNode("e2", 0.9), entityNode("e3", 0.1)), nil)
	svc := newTestService(g, v, healthySnapshot(true, true))

	resp, err := svc.Query(context.Background(), Query{
		Embedding: []float32{0.2},
		Hints:     Hints{EntityIDs: []string{"e1"}},
		Limit:     4,
	})
	require.NoError(t, err)

	assert.Equal(t, StrategyHybrid, resp.Decision.Strategy)
	assert.Equal(t, 4, resp.ResultCount)
	sources := map[StoreID]int{}
	for i, it := range resp.Items {
		sources[it.Source]++
		if i > 0 {
			assert.GreaterOrEqual(t, resp.Items[i-1].Score, it.Score)
		}
	}
	assert.Positive(t, sources[StoreVector])
	assert.Positive(t, sources[StoreGraph])
	v.AssertExpectations(t)
	g.AssertExpectations(t)
}

func TestExecute_HybridOneStoreFails(t *testing.T) {
	v := &mockVector{}
	v.On("SimilaritySearch", mock.Anything, mock.Anything).Return(&search.Result{Chunks: []search.ChunkHit{{ID: "c1", Similarity: 0.9}}}, nil)
	g := &mockGraph{}
	g.On("SimilarityFallback", mock.Anything, mock.Anything).Return(nil, apperror.ErrConnection)
	svc := newTestService(g, v, healthySnapshot(true, true))

	d := Decision{Strategy: StrategyHybrid, PrimaryStore: StoreVector, Complexity: ComplexityHybridQuery}
	resp, err := svc.Execute(context.Background(), d, Query{Embedding: []float32{1}})
	require.NoError(t, err)

	assert.Len(t, resp.Items, 1)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "graph store failed")
}

func TestExecute_HybridBothFailReturnsPrimaryError(t *testing.T) {
	v := &mockVector{}
	v.On("SimilaritySearch", mock.Anything, mock.Anything).Return(nil, apperror.ErrDatabase)
	g := &mockGraph{}
	g.On("SimilarityFallback", mock.Anything, mock.Anything).Return(nil, apperror.ErrConnection)
	svc := newTestService(g, v, healthySnapshot(true, true))

	d := Decision{Strategy: StrategyHybrid, PrimaryStore: StoreGraph, Complexity: ComplexityHybridQuery}
	_, err := svc.Execute(context.Background(), d, Query{Embedding: []float32{1}})
	assert.True(t, apperror.Is(err, apperror.ErrConnection))
}

func TestExecute_UnknownStrategy(t *testing.T) {
	svc := newTestService(&mockGraph{}, &mockVector{}, healthySnapshot(true, true))

	_, err := svc.Execute(context.Background(), Decision{Strategy: "teleport"}, Query{})
	assert.True(t, apperror.Is(err, apperror.ErrUnsupportedOperation))
}

func TestFuse_TiesFavourPrimary(t *testing.T) {
	items := fuse(StoreGraph, 10,
		[]Item{{ID: "v", Source: StoreVector, RawScore: 0.5}},
		[]Item{{ID: "g", Source: StoreGraph, RawScore: 3}},
	)
	require.Len(t, items, 2)
	assert.Equal(t, "g", items[0].ID)
	assert.Equal(t, items[0].Score, items[1].Score)
}
