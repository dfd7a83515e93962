package routing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
)

// Complexity is the class a query is assigned before routing.
type Complexity string

const (
	ComplexitySimpleVector      Complexity = "simple_vector"
	ComplexityEntityLookup      Complexity = "entity_lookup"
	ComplexityRelationshipQuery Complexity = "relationship_query"
	ComplexityComplexGraph      Complexity = "complex_graph"
	// ComplexityHybridQuery always uses both stores and sits outside the cost order.
	ComplexityHybridQuery Complexity = "hybrid_query"
)

// Cost orders the graph-shaped classes by expected cost. Hybrid queries return 0.
func (c Complexity) Cost() int {
	switch c {
	case ComplexitySimpleVector:
		return 1
	case ComplexityEntityLookup:
		return 2
	case ComplexityRelationshipQuery:
		return 3
	case ComplexityComplexGraph:
		return 4
	default:
		return 0
	}
}

// Valid reports whether c is a known complexity class.
func (c Complexity) Valid() bool {
	return c.Cost() > 0 || c == ComplexityHybridQuery
}

// GraphShaped reports whether answering c needs a traversal.
func (c Complexity) GraphShaped() bool {
	return c == ComplexityRelationshipQuery || c == ComplexityComplexGraph
}

// Hints are explicit caller signals that override text inspection.
type Hints struct {
	RequestedHopCount          *int     `json:"requestedHopCount,omitempty"`
	RequiresEntityResolution   bool     `json:"requiresEntityResolution,omitempty"`
	RequiresCommunityDetection bool     `json:"requiresCommunityDetection,omitempty"`
	HasEmbedding               bool     `json:"hasEmbedding,omitempty"`
	EntityIDs                  []string `json:"entityIds,omitempty"`
	RelationshipTypes          []string `json:"relationshipTypes,omitempty"`
}

// Query is one retrieval request.
type Query struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	Hints     Hints     `json:"hints"`
	Limit     int       `json:"limit,omitempty"`
	Threshold *float64  `json:"threshold,omitempty"`
}

func (q Query) hasEmbedding() bool {
	return len(q.Embedding) > 0 || q.Hints.HasEmbedding
}

func (q Query) hopCount() int {
	if q.Hints.RequestedHopCount == nil {
		return 0
	}
	return *q.Hints.RequestedHopCount
}

// Lower-cased substrings that signal graph reasoning in free text.
var (
	communityPhrases = []string{"community", "communities", "cluster"}
	pathPhrases      = []string{
		"shortest path",
		"path between",
		"path from",
		"connection between",
		"connections between",
		"connected to",
		"relationship between",
	}
)

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// WantsCommunityDetection reports whether q asks for community structure,
// either by hint or by phrasing.
func WantsCommunityDetection(q Query) bool {
	return q.Hints.RequiresCommunityDetection || containsAny(strings.ToLower(q.Text), communityPhrases)
}

// WantsPath reports whether q asks how entities connect.
func WantsPath(q Query) bool {
	return containsAny(strings.ToLower(q.Text), pathPhrases)
}

// Classify assigns a complexity class. The first matching rule wins:
// community detection or multi-entity path reasoning make a complex graph
// query; an embedding plus any graph hint makes a hybrid query; one or two
// hops make a relationship query and deeper traversals a complex one; a
// single entity with no traversal is a lookup; anything else is a plain
// vector search.
func Classify(q Query) Complexity {
	hops := q.hopCount()
	ids := len(q.Hints.EntityIDs)
	path := WantsPath(q)

	multiEntity := path || (ids >= 2 && hops > 0)
	if WantsCommunityDetection(q) || multiEntity {
		return ComplexityComplexGraph
	}

	graphHint := hops > 0 || q.Hints.RequiresEntityResolution || ids > 0
	if q.hasEmbedding() && graphHint {
		return ComplexityHybridQuery
	}

	if hops >= 1 && hops <= 2 {
		return ComplexityRelationshipQuery
	}
	if hops > 2 {
		return ComplexityComplexGraph
	}

	if ids == 1 || q.Hints.RequiresEntityResolution {
		return ComplexityEntityLookup
	}

	return ComplexitySimpleVector
}

type fingerprintInput struct {
	Text               string   `json:"t"`
	HasEmbedding       bool     `json:"e"`
	Hops               int      `json:"h"`
	EntityResolution   bool     `json:"r"`
	CommunityDetection bool     `json:"c"`
	EntityIDs          []string `json:"ids"`
	RelationshipTypes  []string `json:"rt"`
}

// Fingerprint returns a stable SHA-256 over the normalized text and hints.
// Whitespace and case in the text and the order of id lists do not matter.
// Embedding values are not hashed; only their presence affects routing.
func Fingerprint(q Query) string {
	in := fingerprintInput{
		Text:               strings.Join(strings.Fields(strings.ToLower(q.Text)), " "),
		HasEmbedding:       q.hasEmbedding(),
		Hops:               q.hopCount(),
		EntityResolution:   q.Hints.RequiresEntityResolution,
		CommunityDetection: q.Hints.RequiresCommunityDetection,
		EntityIDs:          sortedCopy(q.Hints.EntityIDs),
		RelationshipTypes:  sortedCopy(q.Hints.RelationshipTypes),
	}
	// Marshal of a struct of strings, bools and ints cannot fail.
	data, _ := json.Marshal(in)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sortedCopy(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}
