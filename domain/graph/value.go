package graph

// Kind tags the variant held by a Value.
type Kind int

const (
	KindScalar Kind = iota
	KindNode
	KindRelationship
	KindPath
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindNode:
		return "node"
	case KindRelationship:
		return "relationship"
	case KindPath:
		return "path"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Node is a graph vertex as returned by the store.
type Node struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// Relationship is a directed, typed edge.
type Relationship struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	StartNodeID string         `json:"startNodeId"`
	EndNodeID   string         `json:"endNodeId"`
	Properties  map[string]any `json:"properties"`
}

// Segment is one hop of a Path.
type Segment struct {
	Start        Node         `json:"start"`
	Relationship Relationship `json:"relationship"`
	End          Node         `json:"end"`
}

// Path is a walk from Start to End. Length is the number of segments.
type Path struct {
	Start    Node      `json:"start"`
	End      Node      `json:"end"`
	Segments []Segment `json:"segments"`
	Length   int       `json:"length"`
}

// Nodes returns every node on the path in walk order, Start included.
func (p Path) Nodes() []Node {
	if len(p.Segments) == 0 {
		return []Node{p.Start}
	}
	out := make([]Node, 0, len(p.Segments)+1)
	out = append(out, p.Segments[0].Start)
	for _, s := range p.Segments {
		out = append(out, s.End)
	}
	return out
}

// Relationships returns every relationship on the path in walk order.
func (p Path) Relationships() []Relationship {
	out := make([]Relationship, len(p.Segments))
	for i, s := range p.Segments {
		out[i] = s.Relationship
	}
	return out
}

// Value is a closed sum over the shapes a graph record column can hold.
// Exactly one of the variant fields is meaningful, selected by Kind.
type Value struct {
	Kind         Kind
	Scalar       any
	Node         Node
	Relationship Relationship
	Path         Path
	List         []Value
}

func ScalarValue(v any) Value { return Value{Kind: KindScalar, Scalar: v} }
func NodeValue(n Node) Value { return Value{Kind: KindNode, Node: n} }
func RelationshipValue(r Relationship) Value { return Value{Kind: KindRelationship, Relationship: r} }
func PathValue(p Path) Value { return Value{Kind: KindPath, Path: p} }
func ListValue(items ...Value) Value { return Value{Kind: KindList, List: items} }

// Record is one row returned by a Runner. Values are aligned with Keys.
type Record struct {
	Keys   []string
	Values []Value
}

// Get returns the value for key.
func (r Record) Get(key string) (Value, bool) {
	for i, k := range r.Keys {
		if k == key && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return Value{}, false
}

// Int returns the scalar at key as int64. Missing or non-numeric values yield 0.
func (r Record) Int(key string) int64 {
	v, ok := r.Get(key)
	if !ok || v.Kind != KindScalar {
		return 0
	}
	switch n := v.Scalar.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// Float returns the scalar at key as float64. Missing or non-numeric values yield 0.
func (r Record) Float(key string) float64 {
	v, ok := r.Get(key)
	if !ok || v.Kind != KindScalar {
		return 0
	}
	return toFloat(v.Scalar)
}

// String returns the scalar at key as a string, or "".
func (r Record) String(key string) string {
	v, ok := r.Get(key)
	if !ok || v.Kind != KindScalar {
		return ""
	}
	s, _ := v.Scalar.(string)
	return s
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}
