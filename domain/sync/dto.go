package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction selects which way a run propagates changes.
type Direction string

const (
	DirectionVectorToGraph Direction = "vector_to_graph"
	DirectionGraphToVector Direction = "graph_to_vector"
	DirectionBidirectional Direction = "bidirectional"
)

// ParseDirection accepts the canonical names plus the short forms
// "push", "pull" and "both".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vector_to_graph", "push":
		return DirectionVectorToGraph, nil
	case "graph_to_vector", "pull":
		return DirectionGraphToVector, nil
	case "bidirectional", "both":
		return DirectionBidirectional, nil
	default:
		return "", fmt.Errorf("unknown sync direction %q", s)
	}
}

func (d Direction) pushes() bool {
	return d == DirectionVectorToGraph || d == DirectionBidirectional
}

func (d Direction) pulls() bool {
	return d == DirectionGraphToVector || d == DirectionBidirectional
}

// ConflictPolicy decides who wins when an entity changed on both sides.
// The graph is the source when importing into the relational store.
type ConflictPolicy string

const (
	PolicySourceWins ConflictPolicy = "source_wins"
	PolicyTargetWins ConflictPolicy = "target_wins"
)

// ParseConflictPolicy validates a configured policy.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySourceWins, PolicyTargetWins:
		return p, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q", s)
	}
}

// State is the coordinator's run state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Options configure one run. Zero values fall back to configuration.
type Options struct {
	Direction Direction `json:"direction"`
	BatchSize int       `json:"batchSize"`
	DryRun    bool      `json:"dryRun"`
}

// Result summarises one run. Success is true exactly when Errors is empty.
type Result struct {
	RunID                  uuid.UUID `json:"runId"`
	Success                bool      `json:"success"`
	State                  State     `json:"state"`
	Direction              Direction `json:"direction"`
	DryRun                 bool      `json:"dryRun"`
	DocumentsProcessed     int       `json:"documentsProcessed"`
	ChunksProcessed        int       `json:"chunksProcessed"`
	EntitiesProcessed      int       `json:"entitiesProcessed"`
	RelationshipsProcessed int       `json:"relationshipsProcessed"`
	Conflicts              int       `json:"conflicts"`
	Errors                 []string  `json:"errors"`
	ExecutionTimeMs        int64     `json:"executionTimeMs"`
}

func (r *Result) count(kind EntityKind) {
	switch kind {
	case KindDocument:
		r.DocumentsProcessed++
	case KindChunk:
		r.ChunksProcessed++
	case KindEntity:
		r.EntitiesProcessed++
	case KindRelationship:
		r.RelationshipsProcessed++
	}
}

// Stats reports how far the graph mirror lags behind the relational store.
type Stats struct {
	LastSuccessfulSync *time.Time           `json:"lastSuccessfulSync,omitempty"`
	UnsyncedByType     map[EntityKind]int64 `json:"unsyncedByType"`
	PendingTotal       int64                `json:"pendingTotal"`
	// LagSeconds is the age of the oldest pending change, 0 when nothing is pending.
	LagSeconds float64 `json:"lagSeconds"`
	State      State   `json:"state"`
}

// ImportRequest carries a graph-native entity into the relational store.
type ImportRequest struct {
	GraphID      string
	RelationalID string
	Name         string
	Type         string
	Description  *string
	Properties   map[string]any
	SyncVersion  int64
}

// ImportOutcome reports what ImportEntity did.
type ImportOutcome struct {
	ID          string
	SyncVersion int64
	Created     bool
	// Applied is false when the relational row was kept as is.
	Applied    bool
	Conflict   bool
	Resolution *ConflictResolution
}
