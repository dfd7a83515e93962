package graph

import (
	"fmt"
	"strings"
)

// TraversalParams describes a bounded multi-hop walk from one entity.
type TraversalParams struct {
	StartEntityID     string   `json:"startEntityId"`
	MaxDepth          int      `json:"maxDepth"`
	RelationshipTypes []string `json:"relationshipTypes,omitempty"`
	NodeLabels        []string `json:"nodeLabels,omitempty"`
	Limit             int      `json:"limit"`
}

// SimilarityParams carries an embedding search request.
type SimilarityParams struct {
	Embedding []float32 `json:"embedding"`
	Limit     int       `json:"limit"`
	Threshold float64   `json:"threshold"`
}

// Algorithm names an analytics algorithm run by the graph store.
type Algorithm string

const (
	AlgorithmPageRank           Algorithm = "pagerank"
	AlgorithmCentrality         Algorithm = "centrality"
	AlgorithmCommunityDetection Algorithm = "community_detection"
	AlgorithmShortestPath       Algorithm = "shortest_path"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{
	AlgorithmPageRank,
	AlgorithmCentrality,
	AlgorithmCommunityDetection,
	AlgorithmShortestPath,
}

// Valid reports whether a is a supported algorithm.
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmPageRank, AlgorithmCentrality, AlgorithmCommunityDetection, AlgorithmShortestPath:
		return true
	default:
		return false
	}
}

// ParseAlgorithm accepts the canonical names plus camelCase aliases
// ("communityDetection", "shortestPath").
func ParseAlgorithm(s string) (Algorithm, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	switch norm {
	case "communitydetection":
		norm = string(AlgorithmCommunityDetection)
	case "shortestpath":
		norm = string(AlgorithmShortestPath)
	}
	a := Algorithm(norm)
	if !a.Valid() {
		return "", fmt.Errorf("unknown algorithm %q", s)
	}
	return a, nil
}

// AnalyticsParams selects an algorithm and its inputs.
type AnalyticsParams struct {
	Algorithm  Algorithm      `json:"algorithm"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Limit      int            `json:"limit"`
}

// Metadata describes how a QueryResult was produced.
type Metadata struct {
	MaxDepthReached     int            `json:"maxDepthReached"`
	RequestedDepth      int            `json:"requestedDepth,omitempty"`
	AppliedDepth        int            `json:"appliedDepth,omitempty"`
	UniqueNodes         int            `json:"uniqueNodes"`
	UniqueRelationships int            `json:"uniqueRelationships"`
	Algorithm           Algorithm      `json:"algorithm,omitempty"`
	AlgorithmParameters map[string]any `json:"algorithmParameters,omitempty"`
	// Approximate is set when the result is not a true nearest-neighbour search.
	Approximate bool     `json:"approximate,omitempty"`
	Threshold   *float64 `json:"threshold,omitempty"`
	Reasoning   string   `json:"reasoning,omitempty"`
}

// QueryResult is the envelope returned by every graph operation.
//
// ResultCount equals len(Paths) for path-shaped results and len(Nodes)
// otherwise. Nodes and Relationships are not deduplicated; Metadata carries
// the unique counts.
type QueryResult struct {
	Query           string         `json:"query"`
	Parameters      map[string]any `json:"parameters"`
	ResultCount     int            `json:"resultCount"`
	ExecutionTimeMs int64          `json:"executionTimeMs"`
	Paths           []Path         `json:"paths"`
	Nodes           []Node         `json:"nodes"`
	Relationships   []Relationship `json:"relationships"`
	// Records holds scalar columns row-aligned with Nodes (scores, community ids).
	Records  []map[string]any `json:"records,omitempty"`
	Metadata Metadata         `json:"metadata"`
}

// HealthStatus is the outcome of a structural probe of the graph store.
type HealthStatus struct {
	Healthy           bool    `json:"healthy"`
	LatencyMs         float64 `json:"latencyMs"`
	NodeCount         int64   `json:"nodeCount"`
	RelationshipCount int64   `json:"relationshipCount"`
	Error             string  `json:"error,omitempty"`
}

// SchemaFailure records one statement EnsureSchema could not apply.
type SchemaFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// SchemaReport lists applied and failed schema statements by name.
type SchemaReport struct {
	Applied []string        `json:"applied"`
	Failed  []SchemaFailure `json:"failed"`
}

func newResult(query string, params map[string]any) *QueryResult {
	return &QueryResult{
		Query:         query,
		Parameters:    params,
		Paths:         []Path{},
		Nodes:         []Node{},
		Relationships: []Relationship{},
	}
}

// addPath appends p and its nodes and relationships to the raw lists.
func (r *QueryResult) addPath(p Path) {
	r.Paths = append(r.Paths, p)
	r.Nodes = append(r.Nodes, p.Nodes()...)
	r.Relationships = append(r.Relationships, p.Relationships()...)
	if p.Length > r.Metadata.MaxDepthReached {
		r.Metadata.MaxDepthReached = p.Length
	}
}

// finalize computes ResultCount and the unique counts.
func (r *QueryResult) finalize(pathShaped bool) {
	if pathShaped {
		r.ResultCount = len(r.Paths)
	} else {
		r.ResultCount = len(r.Nodes)
	}

	nodes := make(map[string]struct{}, len(r.Nodes))
	for _, n := range r.Nodes {
		nodes[n.ID] = struct{}{}
	}
	rels := make(map[string]struct{}, len(r.Relationships))
	for _, rel := range r.Relationships {
		rels[rel.ID] = struct{}{}
	}
	r.Metadata.UniqueNodes = len(nodes)
	r.Metadata.UniqueRelationships = len(rels)
}
