package graph

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/pkg/apperror"
	"github.com/emergent-company/dualstore/pkg/logger"
	"github.com/emergent-company/dualstore/pkg/mathutil"
	"github.com/emergent-company/dualstore/pkg/tracing"
)

// Service executes bounded graph operations through a Runner.
type Service struct {
	runner       Runner
	maxDepth     int
	maxLimit     int
	defaultLimit int
	timeout      time.Duration
	log          *slog.Logger
}

// NewService creates a new graph service
func NewService(runner Runner, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		runner:       runner,
		maxDepth:     cfg.Routing.MaxTraversalDepth,
		maxLimit:     cfg.Routing.MaxResultLimit,
		defaultLimit: cfg.Routing.DefaultLimit,
		timeout:      cfg.Routing.QueryTimeout,
		log:          log.With(logger.Scope("graph.svc")),
	}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// relationshipPattern renders a type filter for a variable-length pattern.
// Types are interpolated, so each one must be a plain identifier.
func relationshipPattern(types []string) (string, error) {
	if len(types) == 0 {
		return "", nil
	}
	clean := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.TrimSpace(t)
		if !identifierPattern.MatchString(t) {
			return "", apperror.NewValidation(fmt.Sprintf("invalid relationship type %q", t))
		}
		clean = append(clean, t)
	}
	return ":" + strings.Join(clean, "|"), nil
}

func (s *Service) run(ctx context.Context, op, query string, params map[string]any) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	records, err := s.runner.Run(ctx, query, params)
	QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		QueryErrors.WithLabelValues(op).Inc()
		return nil, classify(op, err)
	}
	return records, nil
}

func (s *Service) runWrite(ctx context.Context, op, query string, params map[string]any) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	records, err := s.runner.RunWrite(ctx, query, params)
	QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		QueryErrors.WithLabelValues(op).Inc()
		return nil, classify(op, err)
	}
	return records, nil
}

// Traverse walks up to the configured depth from an entity. Paths come back
// ordered by length ascending, then terminal-node centrality descending.
func (s *Service) Traverse(ctx context.Context, p TraversalParams) (*QueryResult, error) {
	if strings.TrimSpace(p.StartEntityID) == "" {
		return nil, apperror.NewValidation("startEntityId is required")
	}
	if p.MaxDepth < 0 {
		return nil, apperror.NewValidation("maxDepth must not be negative")
	}
	if p.Limit < 0 {
		return nil, apperror.NewValidation("limit must not be negative")
	}
	relFilter, err := relationshipPattern(p.RelationshipTypes)
	if err != nil {
		return nil, err
	}

	requested := p.MaxDepth
	if requested == 0 {
		requested = s.maxDepth
	}
	applied := mathutil.ClampInt(requested, 1, s.maxDepth)
	limit := mathutil.ClampLimit(p.Limit, s.defaultLimit, s.maxLimit)

	labels := p.NodeLabels
	if labels == nil {
		labels = []string{}
	}

	// depth is interpolated because Cypher does not accept a parameter as a length bound
	query := fmt.Sprintf(`MATCH path = (start:Entity {id: $startId})-[%s*1..%d]-(end)
WHERE all(n IN nodes(path)[1..] WHERE size($labels) = 0 OR any(l IN labels(n) WHERE l IN $labels))
RETURN path, length(path) AS depth, coalesce(end.centrality_score, 0.0) AS score
ORDER BY depth ASC, score DESC
LIMIT $limit`, relFilter, applied)
	params := map[string]any{
		"startId": p.StartEntityID,
		"labels":  labels,
		"limit":   int64(limit),
	}

	ctx, span := tracing.Start(ctx, "graph.traverse",
		attribute.String("dualstore.entity.id", p.StartEntityID),
		attribute.Int("dualstore.depth.requested", p.MaxDepth),
		attribute.Int("dualstore.depth.applied", applied),
	)
	defer span.End()

	start := time.Now()
	records, err := s.run(ctx, "traverse", query, params)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	result := newResult(query, params)
	for _, path := range sortedPaths(records) {
		result.addPath(path)
	}
	result.Metadata.RequestedDepth = p.MaxDepth
	result.Metadata.AppliedDepth = applied
	result.finalize(true)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	s.log.Debug("traversal complete",
		slog.String("start_id", p.StartEntityID),
		slog.Int("applied_depth", applied),
		slog.Int("paths", result.ResultCount))

	return result, nil
}

type scoredPath struct {
	path  Path
	score float64
}

// sortedPaths decodes path rows and stably sorts them by (length asc, score desc).
// The query already orders rows; sorting again keeps the guarantee when a
// store ignores ORDER BY on path expressions.
func sortedPaths(records []Record) []Path {
	scored := make([]scoredPath, 0, len(records))
	for _, rec := range records {
		v, ok := rec.Get("path")
		if !ok || v.Kind != KindPath {
			continue
		}
		scored = append(scored, scoredPath{path: v.Path, score: rec.Float("score")})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].path.Length != scored[j].path.Length {
			return scored[i].path.Length < scored[j].path.Length
		}
		return scored[i].score > scored[j].score
	})
	out := make([]Path, len(scored))
	for i, sp := range scored {
		out[i] = sp.path
	}
	return out
}

// ValidateSimilarity checks an embedding search request before any store call.
func ValidateSimilarity(p SimilarityParams) error {
	if len(p.Embedding) == 0 {
		return apperror.NewValidation("embedding must not be empty")
	}
	if p.Limit <= 0 {
		return apperror.NewValidation("limit must be greater than 0")
	}
	if p.Threshold < 0 || p.Threshold > 1 {
		return apperror.NewValidation("threshold must be between 0 and 1")
	}
	return nil
}

const similarityFallbackReasoning = "graph store has no vector index; entities ranked by precomputed centrality score, not by embedding similarity"

// SimilarityFallback approximates a nearest-neighbour search by ranking
// entities on centrality. The embedding and threshold are validated and
// echoed in metadata but do not influence the ranking.
func (s *Service) SimilarityFallback(ctx context.Context, p SimilarityParams) (*QueryResult, error) {
	if err := ValidateSimilarity(p); err != nil {
		return nil, err
	}
	limit := mathutil.ClampLimit(p.Limit, s.defaultLimit, s.maxLimit)

	query := `MATCH (e:Entity)
RETURN e AS node, coalesce(e.centrality_score, 0.0) AS score
ORDER BY score DESC, e.id ASC
LIMIT $limit`
	params := map[string]any{"limit": int64(limit)}

	ctx, span := tracing.Start(ctx, "graph.similarity_fallback", attribute.Int("dualstore.limit", limit))
	defer span.End()

	start := time.Now()
	records, err := s.run(ctx, "similarity_fallback", query, params)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	result := newResult(query, params)
	collectNodeRows(result, records, "score")
	result.finalize(false)
	threshold := p.Threshold
	result.Metadata.Approximate = true
	result.Metadata.Threshold = &threshold
	result.Metadata.Reasoning = similarityFallbackReasoning
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// EntityContext returns the one-hop neighbourhood of ids, highest-centrality
// neighbours first.
func (s *Service) EntityContext(ctx context.Context, ids []string, limit int) (*QueryResult, error) {
	if len(ids) == 0 {
		return nil, apperror.NewValidation("at least one entity id is required")
	}
	limit = mathutil.ClampLimit(limit, s.defaultLimit, s.maxLimit)

	query := `MATCH path = (e:Entity)-[]-(n)
WHERE e.id IN $ids
RETURN path, 1 AS depth, coalesce(n.centrality_score, 0.0) AS score
ORDER BY score DESC
LIMIT $limit`
	params := map[string]any{"ids": ids, "limit": int64(limit)}

	ctx, span := tracing.Start(ctx, "graph.entity_context", attribute.Int("dualstore.entities", len(ids)))
	defer span.End()

	start := time.Now()
	records, err := s.run(ctx, "entity_context", query, params)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	result := newResult(query, params)
	for _, path := range sortedPaths(records) {
		result.addPath(path)
	}
	result.finalize(true)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// collectNodeRows appends the "node" column of each record to Nodes and the
// named scalar columns to Records, keeping both row-aligned.
func collectNodeRows(result *QueryResult, records []Record, columns ...string) {
	for _, rec := range records {
		v, ok := rec.Get("node")
		if !ok || v.Kind != KindNode {
			continue
		}
		result.Nodes = append(result.Nodes, v.Node)
		row := make(map[string]any, len(columns))
		for _, c := range columns {
			if cv, ok := rec.Get(c); ok && cv.Kind == KindScalar {
				row[c] = cv.Scalar
			}
		}
		result.Records = append(result.Records, row)
	}
}
