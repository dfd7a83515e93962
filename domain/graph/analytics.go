package graph

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/emergent-company/dualstore/pkg/apperror"
	"github.com/emergent-company/dualstore/pkg/mathutil"
	"github.com/emergent-company/dualstore/pkg/tracing"
)

// defaultProjection is the GDS in-memory graph used by pagerank and community
// detection when the caller names none.
const defaultProjection = "dualstore-entities"

// Analytics dispatches to a named algorithm. Every result echoes the
// algorithm and its input parameters in metadata.
func (s *Service) Analytics(ctx context.Context, p AnalyticsParams) (*QueryResult, error) {
	algo, err := ParseAlgorithm(string(p.Algorithm))
	if err != nil {
		return nil, apperror.ErrUnsupportedOperation.
			WithMessage(fmt.Sprintf("unsupported analytics algorithm %q", p.Algorithm)).
			WithDetails(map[string]any{"supported": Algorithms})
	}
	if p.Limit < 0 {
		return nil, apperror.NewValidation("limit must not be negative")
	}
	limit := mathutil.ClampLimit(p.Limit, s.defaultLimit, s.maxLimit)

	input := map[string]any{}
	maps.Copy(input, p.Parameters)

	var (
		query      string
		params     map[string]any
		pathShaped bool
		columns    []string
	)

	switch algo {
	case AlgorithmPageRank:
		graphName := stringParam(input, "graphName", defaultProjection)
		query = `CALL gds.pageRank.stream($graphName, {maxIterations: $maxIterations, dampingFactor: $dampingFactor})
YIELD nodeId, score
WITH gds.util.asNode(nodeId) AS node, score
RETURN node, score
ORDER BY score DESC, node.id ASC
LIMIT $limit`
		params = map[string]any{
			"graphName":     graphName,
			"maxIterations": intParam(input, "maxIterations", 20),
			"dampingFactor": floatParam(input, "dampingFactor", 0.85),
			"limit":         int64(limit),
		}
		columns = []string{"score"}

	case AlgorithmCentrality:
		query = `MATCH (node:Entity)
OPTIONAL MATCH (node)-[r]-()
WITH node, count(r) AS score
RETURN node, score
ORDER BY score DESC, node.id ASC
LIMIT $limit`
		params = map[string]any{"limit": int64(limit)}
		columns = []string{"score"}

	case AlgorithmCommunityDetection:
		graphName := stringParam(input, "graphName", defaultProjection)
		query = `CALL gds.louvain.stream($graphName)
YIELD nodeId, communityId
WITH gds.util.asNode(nodeId) AS node, communityId
RETURN node, communityId
ORDER BY communityId ASC, node.id ASC
LIMIT $limit`
		params = map[string]any{"graphName": graphName, "limit": int64(limit)}
		columns = []string{"communityId"}

	case AlgorithmShortestPath:
		startID := stringParam(input, "startNodeId", "")
		endID := stringParam(input, "endNodeId", "")
		if startID == "" || endID == "" {
			return nil, apperror.NewValidation("shortest_path requires startNodeId and endNodeId").
				WithDetails(map[string]any{"algorithm": algo})
		}
		depth := mathutil.ClampInt(int(intParam(input, "maxDepth", int64(s.maxDepth))), 1, s.maxDepth)
		query = fmt.Sprintf(`MATCH (a:Entity {id: $startNodeId}), (b:Entity {id: $endNodeId})
MATCH path = shortestPath((a)-[*..%d]-(b))
RETURN path, length(path) AS depth, coalesce(b.centrality_score, 0.0) AS score
LIMIT $limit`, depth)
		params = map[string]any{"startNodeId": startID, "endNodeId": endID, "limit": int64(limit)}
		pathShaped = true
	}

	ctx, span := tracing.Start(ctx, "graph.analytics",
		attribute.String("dualstore.algorithm", string(algo)),
		attribute.Int("dualstore.limit", limit),
	)
	defer span.End()

	start := time.Now()
	records, err := s.run(ctx, "analytics_"+string(algo), query, params)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	result := newResult(query, params)
	if pathShaped {
		for _, path := range sortedPaths(records) {
			result.addPath(path)
		}
	} else {
		collectNodeRows(result, records, columns...)
	}
	result.finalize(pathShaped)
	result.Metadata.Algorithm = algo
	result.Metadata.AlgorithmParameters = input
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

func stringParam(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// intParam reads a numeric parameter; JSON decoding yields float64.
func intParam(params map[string]any, key string, def int64) int64 {
	switch v := params[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return def
}

func floatParam(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}
