package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/emergent-company/dualstore/internal/config"
)

// Runner runs a parameterized Cypher query and returns decoded records.
// Implementations must release their session on every exit path.
type Runner interface {
	Run(ctx context.Context, query string, params map[string]any) ([]Record, error)
	RunWrite(ctx context.Context, query string, params map[string]any) ([]Record, error)
}

// Neo4jRunner adapts a Bolt driver to Runner, one session per call.
type Neo4jRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jRunner creates a runner over driver.
func NewNeo4jRunner(driver neo4j.DriverWithContext, cfg *config.Config) *Neo4jRunner {
	return &Neo4jRunner{driver: driver, database: cfg.Graph.Database}
}

func (r *Neo4jRunner) Run(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	return r.run(ctx, neo4j.AccessModeRead, query, params)
}

func (r *Neo4jRunner) RunWrite(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	return r.run(ctx, neo4j.AccessModeWrite, query, params)
}

func (r *Neo4jRunner) run(ctx context.Context, mode neo4j.AccessMode, query string, params map[string]any) ([]Record, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: r.database,
	})
	// a cancelled request must still hand the connection back
	defer session.Close(context.WithoutCancel(ctx))

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	raw, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]Record, len(raw))
	for i, rec := range raw {
		values := make([]Value, len(rec.Values))
		for j, v := range rec.Values {
			values[j] = Decode(v)
		}
		records[i] = Record{Keys: rec.Keys, Values: values}
	}
	return records, nil
}

// Decode converts a driver value into a Value. It is the only place that
// inspects driver types.
func Decode(v any) Value {
	switch t := v.(type) {
	case dbtype.Node:
		return NodeValue(decodeNode(t))
	case dbtype.Relationship:
		return RelationshipValue(decodeRelationship(t))
	case dbtype.Path:
		return PathValue(decodePath(t))
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = Decode(item)
		}
		return ListValue(items...)
	default:
		return ScalarValue(normalizeScalar(t))
	}
}

func decodeNode(n dbtype.Node) Node {
	return Node{
		ID:         n.ElementId,
		Labels:     n.Labels,
		Properties: normalizeProps(n.Props),
	}
}

func decodeRelationship(r dbtype.Relationship) Relationship {
	return Relationship{
		ID:          r.ElementId,
		Type:        r.Type,
		StartNodeID: r.StartElementId,
		EndNodeID:   r.EndElementId,
		Properties:  normalizeProps(r.Props),
	}
}

func decodePath(p dbtype.Path) Path {
	if len(p.Nodes) == 0 {
		return Path{}
	}
	nodes := make([]Node, len(p.Nodes))
	for i, n := range p.Nodes {
		nodes[i] = decodeNode(n)
	}

	segments := make([]Segment, 0, len(p.Relationships))
	for i, rel := range p.Relationships {
		if i+1 >= len(nodes) {
			break
		}
		segments = append(segments, Segment{
			Start:        nodes[i],
			Relationship: decodeRelationship(rel),
			End:          nodes[i+1],
		})
	}

	return Path{
		Start:    nodes[0],
		End:      nodes[len(nodes)-1],
		Segments: segments,
		Length:   len(segments),
	}
}

func normalizeProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = normalizeScalar(v)
	}
	return out
}

// normalizeScalar turns Bolt temporal types into values that encode cleanly as JSON.
func normalizeScalar(v any) any {
	switch t := v.(type) {
	case dbtype.Date:
		return t.Time().Format(time.DateOnly)
	case dbtype.LocalDateTime:
		return t.Time()
	case dbtype.LocalTime:
		return t.Time().Format("15:04:05.999999999")
	case dbtype.Time:
		return t.Time().Format("15:04:05.999999999Z07:00")
	case dbtype.Duration:
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeScalar(item)
		}
		return out
	case map[string]any:
		return normalizeProps(t)
	default:
		return v
	}
}
