package routing

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/emergent-company/dualstore/domain/graph"
	"github.com/emergent-company/dualstore/domain/search"
	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/pkg/apperror"
	"github.com/emergent-company/dualstore/pkg/logger"
	"github.com/emergent-company/dualstore/pkg/mathutil"
	"github.com/emergent-company/dualstore/pkg/storehealth"
	"github.com/emergent-company/dualstore/pkg/tracing"
)

// GraphStore is the graph execution layer as the router sees it.
type GraphStore interface {
	Traverse(ctx context.Context, p graph.TraversalParams) (*graph.QueryResult, error)
	SimilarityFallback(ctx context.Context, p graph.SimilarityParams) (*graph.QueryResult, error)
	Analytics(ctx context.Context, p graph.AnalyticsParams) (*graph.QueryResult, error)
	EntityContext(ctx context.Context, ids []string, limit int) (*graph.QueryResult, error)
}

// VectorStore is the vector/relational execution layer as the router sees it.
type VectorStore interface {
	SimilaritySearch(ctx context.Context, p search.SimilarityParams) (*search.Result, error)
	EntityLookup(ctx context.Context, id string) (*search.Entity, error)
	EntitySimilarity(ctx context.Context, p search.SimilarityParams) (*search.Result, error)
}

// HealthSource supplies the latest store health snapshot.
type HealthSource interface {
	Snapshot() *storehealth.Snapshot
}

// Item is one ranked entry of a routed response.
type Item struct {
	ID     string  `json:"id"`
	Kind   string  `json:"kind"`
	Source StoreID `json:"source"`
	Label  string  `json:"label,omitempty"`
	// Score is comparable across stores in hybrid responses; RawScore is the store's own.
	Score    float64 `json:"score"`
	RawScore float64 `json:"rawScore"`
}

const (
	KindChunk  = "chunk"
	KindEntity = "entity"
	KindNode   = "node"
)

// Response is the uniform envelope returned for every routed query.
type Response struct {
	Decision        Decision           `json:"decision"`
	Items           []Item             `json:"items"`
	ResultCount     int                `json:"resultCount"`
	Vector          *search.Result     `json:"vector,omitempty"`
	Entities        []search.Entity    `json:"entities,omitempty"`
	Graph           *graph.QueryResult `json:"graph,omitempty"`
	Warnings        []string           `json:"warnings,omitempty"`
	ExecutionTimeMs int64              `json:"executionTimeMs"`
}

// Service classifies, routes and dispatches queries.
type Service struct {
	graph    GraphStore
	vector   VectorStore
	health   HealthSource
	registry *Registry
	cache    DecisionCache
	log      *slog.Logger

	defaultLimit     int
	maxLimit         int
	defaultThreshold float64
}

// NewService creates a new routing service
func NewService(g GraphStore, v VectorStore, health HealthSource, registry *Registry, cache DecisionCache, cfg *config.Config, log *slog.Logger) *Service {
	if cache == nil {
		cache = NoopCache()
	}
	return &Service{
		graph:            g,
		vector:           v,
		health:           health,
		registry:         registry,
		cache:            cache,
		log:              log.With(logger.Scope("routing.svc")),
		defaultLimit:     cfg.Routing.DefaultLimit,
		maxLimit:         cfg.Routing.MaxResultLimit,
		defaultThreshold: cfg.Routing.DefaultThreshold,
	}
}

// Route classifies q and decides where to send it. It never fails.
func (s *Service) Route(ctx context.Context, q Query) Decision {
	h := HealthFromSnapshot(s.health.Snapshot())
	key := Fingerprint(q) + ":" + h.signature()

	d, ok := s.cache.Get(ctx, key)
	if ok {
		CacheLookups.WithLabelValues("hit").Inc()
	} else {
		CacheLookups.WithLabelValues("miss").Inc()
		c := Classify(q)
		d = DecideFor(q, c, h, s.registry)
		// Decisions made on stale health are not worth keeping.
		if !h.Stale {
			s.cache.Set(ctx, key, d)
		}
	}

	DecisionsTotal.WithLabelValues(string(d.Strategy), string(d.Complexity), strconv.FormatBool(d.Degraded)).Inc()
	s.log.Debug("query routed",
		slog.String("complexity", string(d.Complexity)),
		slog.String("strategy", string(d.Strategy)),
		slog.String("primary", string(d.PrimaryStore)),
		slog.Bool("degraded", d.Degraded),
		slog.Bool("cached", ok))
	return d
}

// Query routes q and executes the decision.
func (s *Service) Query(ctx context.Context, q Query) (*Response, error) {
	return s.Execute(ctx, s.Route(ctx, q), q)
}

// Execute runs q according to d. A degraded decision is not executed: the
// caller gets ErrDegradedRouting carrying the decision and its explanation
// instead of a result of the wrong shape.
func (s *Service) Execute(ctx context.Context, d Decision, q Query) (*Response, error) {
	if d.Degraded {
		return nil, apperror.ErrDegradedRouting.
			WithMessage(d.Reasoning).
			WithDetails(map[string]any{"decision": d})
	}

	ctx, span := tracing.Start(ctx, "routing.execute",
		attribute.String("dualstore.strategy", string(d.Strategy)),
		attribute.String("dualstore.complexity", string(d.Complexity)),
	)
	defer span.End()

	start := time.Now()
	resp := &Response{Decision: d, Items: []Item{}}

	var err error
	switch d.Strategy {
	case StrategyVectorOnly:
		err = s.execVector(ctx, q, resp)
	case StrategyGraphOnly:
		err = s.execGraph(ctx, d.Complexity, q, resp)
	case StrategyVectorPrimaryGraphBridge:
		err = s.execBridge(ctx, q, resp)
	case StrategyGraphPrimaryVectorFallback:
		err = s.execGraphWithFallback(ctx, d, q, resp)
	case StrategyHybrid:
		err = s.execHybrid(ctx, d, q, resp)
	default:
		err = apperror.ErrUnsupportedOperation.WithMessage(fmt.Sprintf("unknown strategy %q", d.Strategy))
	}
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	resp.ResultCount = len(resp.Items)
	resp.ExecutionTimeMs = time.Since(start).Milliseconds()
	ExecutionDuration.WithLabelValues(string(d.Strategy)).Observe(time.Since(start).Seconds())
	return resp, nil
}

func (s *Service) limit(q Query) int {
	return mathutil.ClampLimit(q.Limit, s.defaultLimit, s.maxLimit)
}

func (s *Service) threshold(q Query) float64 {
	if q.Threshold != nil {
		return *q.Threshold
	}
	return s.defaultThreshold
}

// execVector resolves entity ids and runs chunk similarity when an embedding is present.
func (s *Service) execVector(ctx context.Context, q Query, resp *Response) error {
	ids := q.Hints.EntityIDs
	if len(ids) == 0 && len(q.Embedding) == 0 {
		return apperror.NewValidation("query needs an embedding or entity ids")
	}

	for _, id := range ids {
		e, err := s.vector.EntityLookup(ctx, id)
		if apperror.Is(err, apperror.ErrNotFound) {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("entity %s not found", id))
			continue
		}
		if err != nil {
			return err
		}
		resp.Entities = append(resp.Entities, *e)
		resp.Items = append(resp.Items, Item{ID: e.ID, Kind: KindEntity, Source: StoreVector, Label: e.Name, Score: 1, RawScore: 1})
	}

	if len(q.Embedding) == 0 {
		return nil
	}
	res, err := s.vector.SimilaritySearch(ctx, search.SimilarityParams{
		Embedding: q.Embedding,
		Limit:     s.limit(q),
		Threshold: s.threshold(q),
	})
	if err != nil {
		return err
	}
	resp.Vector = res
	for _, c := range res.Chunks {
		resp.Items = append(resp.Items, Item{ID: c.ID, Kind: KindChunk, Source: StoreVector, Label: c.Text, Score: c.Similarity, RawScore: c.Similarity})
	}
	return nil
}

func (s *Service) execGraph(ctx context.Context, c Complexity, q Query, resp *Response) error {
	res, err := s.runGraph(ctx, c, q)
	if err != nil {
		return err
	}
	resp.Graph = res
	resp.Items = append(resp.Items, graphItems(res)...)
	return nil
}

// runGraph picks the graph operation that answers q.
func (s *Service) runGraph(ctx context.Context, c Complexity, q Query) (*graph.QueryResult, error) {
	ids := q.Hints.EntityIDs
	limit := s.limit(q)

	switch {
	case c == ComplexityHybridQuery:
		return s.hybridGraph(ctx, q)

	case c == ComplexitySimpleVector, c == ComplexityEntityLookup && len(ids) == 0:
		return s.similarityFallback(ctx, q)

	case c == ComplexityEntityLookup:
		return s.graph.EntityContext(ctx, ids, limit)

	case WantsCommunityDetection(q):
		return s.graph.Analytics(ctx, graph.AnalyticsParams{
			Algorithm: graph.AlgorithmCommunityDetection,
			Limit:     limit,
		})

	case len(ids) >= 2 && WantsPath(q):
		params := map[string]any{"startNodeId": ids[0], "endNodeId": ids[1]}
		if hops := q.hopCount(); hops > 0 {
			params["maxDepth"] = hops
		}
		return s.graph.Analytics(ctx, graph.AnalyticsParams{
			Algorithm:  graph.AlgorithmShortestPath,
			Parameters: params,
			Limit:      limit,
		})

	default:
		if len(ids) == 0 {
			return nil, apperror.NewValidation("traversal requires a start entity id")
		}
		return s.graph.Traverse(ctx, graph.TraversalParams{
			StartEntityID:     ids[0],
			MaxDepth:          q.hopCount(),
			RelationshipTypes: q.Hints.RelationshipTypes,
			Limit:             limit,
		})
	}
}

func (s *Service) similarityFallback(ctx context.Context, q Query) (*graph.QueryResult, error) {
	return s.graph.SimilarityFallback(ctx, graph.SimilarityParams{
		Embedding: q.Embedding,
		Limit:     s.limit(q),
		Threshold: s.threshold(q),
	})
}

// hybridGraph walks from the named entities, or falls back to centrality
// ranking when the query names none.
func (s *Service) hybridGraph(ctx context.Context, q Query) (*graph.QueryResult, error) {
	ids := q.Hints.EntityIDs
	if len(ids) == 0 {
		return s.similarityFallback(ctx, q)
	}
	depth := q.hopCount()
	if depth <= 0 {
		depth = 1
	}
	return s.graph.Traverse(ctx, graph.TraversalParams{
		StartEntityID:     ids[0],
		MaxDepth:          depth,
		RelationshipTypes: q.Hints.RelationshipTypes,
		Limit:             s.limit(q),
	})
}

// execBridge answers from the vector store and enriches the resolved
// entities with their graph neighbourhood. Enrichment failures are warnings.
func (s *Service) execBridge(ctx context.Context, q Query, resp *Response) error {
	if err := s.execVector(ctx, q, resp); err != nil {
		return err
	}

	ids := make([]string, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		ids = append(ids, e.ID)
	}
	if len(ids) == 0 && len(q.Embedding) > 0 {
		res, err := s.vector.EntitySimilarity(ctx, search.SimilarityParams{
			Embedding: q.Embedding,
			Limit:     s.limit(q),
			Threshold: s.threshold(q),
		})
		if err != nil {
			resp.Warnings = append(resp.Warnings, "entity resolution failed: "+err.Error())
			return nil
		}
		for _, e := range res.Entities {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	res, err := s.graph.EntityContext(ctx, ids, s.limit(q))
	if err != nil {
		s.log.Warn("graph enrichment failed", logger.Error(err))
		resp.Warnings = append(resp.Warnings, "graph enrichment failed: "+err.Error())
		return nil
	}
	resp.Graph = res
	resp.Items = append(resp.Items, graphItems(res)...)
	return nil
}

// execGraphWithFallback retries on the fallback store when the graph store
// cannot be reached.
func (s *Service) execGraphWithFallback(ctx context.Context, d Decision, q Query, resp *Response) error {
	err := s.execGraph(ctx, d.Complexity, q, resp)
	if err == nil {
		return nil
	}
	if d.FallbackStore == nil || !apperror.Is(err, apperror.ErrConnection) {
		return err
	}

	s.log.Warn("graph store failed, using fallback store",
		slog.String("fallback", string(*d.FallbackStore)),
		logger.Error(err))
	resp.Warnings = append(resp.Warnings, "graph store failed, answered from the vector store")
	return s.execVector(ctx, q, resp)
}

// execHybrid queries both stores concurrently and fuses their rankings.
// One failing store leaves a warning; both failing returns the primary's error.
func (s *Service) execHybrid(ctx context.Context, d Decision, q Query, resp *Response) error {
	vr := &Response{}
	gr := &Response{}
	var vecErr, graphErr error

	var g errgroup.Group
	g.Go(func() error {
		vecErr = s.execVector(ctx, q, vr)
		return nil
	})
	g.Go(func() error {
		graphErr = s.execGraph(ctx, ComplexityHybridQuery, q, gr)
		return nil
	})
	_ = g.Wait()

	if vecErr != nil && graphErr != nil {
		if d.PrimaryStore == StoreGraph {
			return graphErr
		}
		return vecErr
	}
	if vecErr != nil {
		resp.Warnings = append(resp.Warnings, "vector store failed: "+vecErr.Error())
	}
	if graphErr != nil {
		resp.Warnings = append(resp.Warnings, "graph store failed: "+graphErr.Error())
	}

	resp.Vector = vr.Vector
	resp.Entities = vr.Entities
	resp.Graph = gr.Graph
	resp.Warnings = append(resp.Warnings, vr.Warnings...)
	resp.Warnings = append(resp.Warnings, gr.Warnings...)
	resp.Items = fuse(d.PrimaryStore, s.limit(q), vr.Items, gr.Items)
	return nil
}

// fuse normalizes each store's scores onto a common scale and merges them,
// best first. Ties favour the primary store, then the lower id.
func fuse(primary StoreID, limit int, lists ...[]Item) []Item {
	merged := []Item{}
	for _, items := range lists {
		raw := make([]float64, len(items))
		for i, it := range items {
			raw[i] = it.RawScore
		}
		for i, score := range mathutil.Normalize(raw) {
			it := items[i]
			it.Score = score
			merged = append(merged, it)
		}
	}

	slices.SortStableFunc(merged, func(a, b Item) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if a.Source != b.Source {
			if a.Source == primary {
				return -1
			}
			if b.Source == primary {
				return 1
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// graphItems ranks path terminals for path-shaped results and the returned
// nodes otherwise.
func graphItems(res *graph.QueryResult) []Item {
	if res == nil {
		return nil
	}

	items := []Item{}
	if len(res.Paths) > 0 {
		seen := make(map[string]struct{}, len(res.Paths))
		for _, p := range res.Paths {
			id := entityID(p.End)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			score := numeric(p.End.Properties["centrality_score"])
			items = append(items, Item{ID: id, Kind: KindNode, Source: StoreGraph, Label: nodeLabel(p.End), Score: score, RawScore: score})
		}
		return items
	}

	for i, n := range res.Nodes {
		score := numeric(n.Properties["centrality_score"])
		if i < len(res.Records) {
			if v, ok := res.Records[i]["score"]; ok {
				score = numeric(v)
			}
		}
		items = append(items, Item{ID: entityID(n), Kind: KindNode, Source: StoreGraph, Label: nodeLabel(n), Score: score, RawScore: score})
	}
	return items
}

// entityID prefers the relational id mirrored onto the node.
func entityID(n graph.Node) string {
	if id, ok := n.Properties["id"].(string); ok && id != "" {
		return id
	}
	return n.ID
}

func nodeLabel(n graph.Node) string {
	if name, ok := n.Properties["name"].(string); ok {
		return name
	}
	return ""
}

func numeric(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
