package routing

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// StoreID identifies one of the two stores.
type StoreID string

const (
	StoreVector StoreID = "vector"
	StoreGraph  StoreID = "graph"
)

// Valid reports whether s names a known store.
func (s StoreID) Valid() bool {
	return s == StoreVector || s == StoreGraph
}

// Capability is a feature a store may support.
type Capability string

const (
	CapVectorSimilarity   Capability = "vector_similarity"
	CapFullText           Capability = "full_text"
	CapGraphTraversal     Capability = "graph_traversal"
	CapEntityResolution   Capability = "entity_resolution"
	CapCommunityDetection Capability = "community_detection"
)

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	switch c {
	case CapVectorSimilarity, CapFullText, CapGraphTraversal, CapEntityResolution, CapCommunityDetection:
		return true
	default:
		return false
	}
}

// Strategy is how a query is dispatched across the stores.
type Strategy string

const (
	StrategyVectorOnly                 Strategy = "vector_only"
	StrategyGraphOnly                  Strategy = "graph_only"
	StrategyHybrid                     Strategy = "hybrid"
	StrategyVectorPrimaryGraphBridge   Strategy = "vector_primary_graph_bridge"
	StrategyGraphPrimaryVectorFallback Strategy = "graph_primary_vector_fallback"
)

// Strategies lists every routing strategy.
var Strategies = []Strategy{
	StrategyVectorOnly,
	StrategyGraphOnly,
	StrategyHybrid,
	StrategyVectorPrimaryGraphBridge,
	StrategyGraphPrimaryVectorFallback,
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return slices.Contains(Strategies, s)
}

// Registry describes what each store can do. It is read-only after construction.
type Registry struct {
	capabilities map[StoreID][]Capability
}

// DefaultRegistry returns the built-in capabilities: pgvector for similarity
// and full text, the graph store for traversal and community detection, and
// entity resolution on both.
func DefaultRegistry() *Registry {
	return &Registry{capabilities: map[StoreID][]Capability{
		StoreVector: {CapVectorSimilarity, CapFullText, CapEntityResolution},
		StoreGraph:  {CapGraphTraversal, CapEntityResolution, CapCommunityDetection},
	}}
}

type registryFile struct {
	Stores map[StoreID][]Capability `yaml:"stores"`
}

// LoadRegistry reads a YAML override of the capability table:
//
//	stores:
//	  vector: [vector_similarity, full_text, entity_resolution]
//	  graph: [graph_traversal, entity_resolution]
//
// Stores missing from the file keep their default capabilities.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses the YAML registry format.
func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	reg := DefaultRegistry()
	for store, caps := range f.Stores {
		if !store.Valid() {
			return nil, fmt.Errorf("registry: unknown store %q", store)
		}
		for _, c := range caps {
			if !c.Valid() {
				return nil, fmt.Errorf("registry: unknown capability %q for store %s", c, store)
			}
		}
		reg.capabilities[store] = slices.Clone(caps)
	}
	return reg, nil
}

// Supports reports whether store has every capability in caps.
func (r *Registry) Supports(store StoreID, caps ...Capability) bool {
	if r == nil {
		return false
	}
	have := r.capabilities[store]
	for _, c := range caps {
		if !slices.Contains(have, c) {
			return false
		}
	}
	return true
}

// Capabilities returns a copy of store's capability list.
func (r *Registry) Capabilities(store StoreID) []Capability {
	if r == nil {
		return nil
	}
	return slices.Clone(r.capabilities[store])
}
