package routing

import (
	"fmt"

	"github.com/emergent-company/dualstore/pkg/storehealth"
)

// Decision is the routing outcome for one query. It is never persisted.
type Decision struct {
	Strategy      Strategy   `json:"strategy"`
	PrimaryStore  StoreID    `json:"primaryStore"`
	FallbackStore *StoreID   `json:"fallbackStore,omitempty"`
	Reasoning     string     `json:"reasoning"`
	Complexity    Complexity `json:"complexity"`
	// Degraded is set when no store can answer the query as asked.
	Degraded bool `json:"degraded,omitempty"`
}

// StoreHealth is the part of a probe outcome the engine looks at.
type StoreHealth struct {
	Healthy   bool    `json:"healthy"`
	LatencyMs float64 `json:"latencyMs"`
}

// HealthSnapshot is the per-store health the engine decides on.
type HealthSnapshot struct {
	Vector StoreHealth `json:"vector"`
	Graph  StoreHealth `json:"graph"`
	Stale  bool        `json:"stale,omitempty"`
}

// HealthFromSnapshot projects a monitor snapshot onto the two routed stores.
func HealthFromSnapshot(s *storehealth.Snapshot) HealthSnapshot {
	v := s.Store(string(StoreVector))
	g := s.Store(string(StoreGraph))
	return HealthSnapshot{
		Vector: StoreHealth{Healthy: v.Healthy, LatencyMs: v.LatencyMs},
		Graph:  StoreHealth{Healthy: g.Healthy, LatencyMs: g.LatencyMs},
		Stale:  s == nil || s.Stale,
	}
}

// signature is the part of the snapshot that can change a decision.
func (h HealthSnapshot) signature() string {
	faster := StoreVector
	if h.Graph.LatencyMs >= 0 && h.Graph.LatencyMs < h.Vector.LatencyMs {
		faster = StoreGraph
	}
	return fmt.Sprintf("v%t.g%t.%s", h.Vector.Healthy, h.Graph.Healthy, faster)
}

const reasonGraphUnavailable = "graph unavailable, traversal not possible, returning empty result with explanation"

func storePtr(s StoreID) *StoreID { return &s }

// RequiredGraphCapabilities lists what the graph store must support to answer q.
func RequiredGraphCapabilities(c Complexity, q Query) []Capability {
	caps := []Capability{CapGraphTraversal}
	if c == ComplexityComplexGraph && WantsCommunityDetection(q) {
		caps = append(caps, CapCommunityDetection)
	}
	return caps
}

// Decide maps a complexity class and store health onto a routing decision.
// It never fails: when the query cannot be answered as asked, the decision
// is marked Degraded and Reasoning says why. Whenever at least one store is
// healthy the primary store is a healthy one.
func Decide(c Complexity, h HealthSnapshot, reg *Registry) Decision {
	return decide(c, h, reg, []Capability{CapGraphTraversal})
}

// DecideFor is Decide with the graph capabilities q actually needs.
func DecideFor(q Query, c Complexity, h HealthSnapshot, reg *Registry) Decision {
	return decide(c, h, reg, RequiredGraphCapabilities(c, q))
}

func decide(c Complexity, h HealthSnapshot, reg *Registry, graphCaps []Capability) Decision {
	d := decideHealthy(c, h, reg, graphCaps)
	d.Complexity = c
	if h.Stale {
		d.Reasoning += " (health data is stale)"
	}
	return d
}

func decideHealthy(c Complexity, h HealthSnapshot, reg *Registry, graphCaps []Capability) Decision {
	vectorUp, graphUp := h.Vector.Healthy, h.Graph.Healthy

	if !vectorUp && !graphUp {
		return Decision{
			Strategy:     StrategyVectorOnly,
			PrimaryStore: StoreVector,
			Degraded:     true,
			Reasoning:    "degraded mode: both stores are unhealthy, defaulting to the vector store",
		}
	}

	switch c {
	case ComplexitySimpleVector:
		if vectorUp {
			return Decision{
				Strategy:     StrategyVectorOnly,
				PrimaryStore: StoreVector,
				Reasoning:    "plain similarity search served by the vector store",
			}
		}
		return Decision{
			Strategy:     StrategyGraphOnly,
			PrimaryStore: StoreGraph,
			Reasoning:    "vector store unavailable; graph store approximates similarity by centrality ranking",
		}

	case ComplexityEntityLookup:
		if !vectorUp {
			return Decision{
				Strategy:      StrategyGraphPrimaryVectorFallback,
				PrimaryStore:  StoreGraph,
				FallbackStore: storePtr(StoreVector),
				Reasoning:     "vector store unavailable; entity resolved from the graph store",
			}
		}
		if graphUp && reg.Supports(StoreGraph, CapEntityResolution) {
			return Decision{
				Strategy:      StrategyVectorPrimaryGraphBridge,
				PrimaryStore:  StoreVector,
				FallbackStore: storePtr(StoreGraph),
				Reasoning:     "entity resolved in the vector store and enriched with graph relationship context",
			}
		}
		return Decision{
			Strategy:     StrategyVectorOnly,
			PrimaryStore: StoreVector,
			Reasoning:    "entity lookup served by the vector store; graph enrichment unavailable",
		}

	case ComplexityRelationshipQuery, ComplexityComplexGraph:
		if graphUp && reg.Supports(StoreGraph, graphCaps...) {
			return Decision{
				Strategy:     StrategyGraphOnly,
				PrimaryStore: StoreGraph,
				Reasoning:    fmt.Sprintf("%s requires graph traversal", c),
			}
		}
		primary, strategy := StoreVector, StrategyVectorOnly
		if !vectorUp {
			primary, strategy = StoreGraph, StrategyGraphOnly
		}
		reason := reasonGraphUnavailable
		if graphUp {
			reason = fmt.Sprintf("graph store lacks %v; %s", graphCaps, reasonGraphUnavailable)
		}
		return Decision{
			Strategy:     strategy,
			PrimaryStore: primary,
			Degraded:     true,
			Reasoning:    reason,
		}

	case ComplexityHybridQuery:
		switch {
		case vectorUp && graphUp:
			primary, fallback := StoreVector, StoreGraph
			if h.Graph.LatencyMs < h.Vector.LatencyMs {
				primary, fallback = StoreGraph, StoreVector
			}
			return Decision{
				Strategy:      StrategyHybrid,
				PrimaryStore:  primary,
				FallbackStore: storePtr(fallback),
				Reasoning: fmt.Sprintf("hybrid query uses both stores; %s is faster (%.0fms vs %.0fms)",
					primary, latency(h, primary), latency(h, fallback)),
			}
		case vectorUp:
			return Decision{
				Strategy:     StrategyVectorOnly,
				PrimaryStore: StoreVector,
				Reasoning:    "hybrid query degraded to the vector store; graph store unavailable",
			}
		default:
			return Decision{
				Strategy:     StrategyGraphOnly,
				PrimaryStore: StoreGraph,
				Reasoning:    "hybrid query degraded to the graph store; vector store unavailable",
			}
		}

	default:
		primary, strategy := StoreVector, StrategyVectorOnly
		if !vectorUp {
			primary, strategy = StoreGraph, StrategyGraphOnly
		}
		return Decision{
			Strategy:     strategy,
			PrimaryStore: primary,
			Reasoning:    fmt.Sprintf("unknown complexity %q, routed to the healthy %s store", c, primary),
		}
	}
}

func latency(h HealthSnapshot, s StoreID) float64 {
	if s == StoreGraph {
		return h.Graph.LatencyMs
	}
	return h.Vector.LatencyMs
}
