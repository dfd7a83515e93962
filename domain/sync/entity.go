package sync

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// pendingCondition selects rows whose graph mirror is missing or stale.
const pendingCondition = "(graph_node_id IS NULL OR last_synced_at IS NULL OR updated_at > last_synced_at)"

// Document is a row of kb.documents with its mirror columns
type Document struct {
	bun.BaseModel `bun:"table:kb.documents,alias:d"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Filename     *string    `bun:"filename" json:"filename,omitempty"`
	SourceURL    *string    `bun:"source_url" json:"sourceUrl,omitempty"`
	ContentHash  *string    `bun:"content_hash" json:"contentHash,omitempty"`
	MimeType     *string    `bun:"mime_type" json:"mimeType,omitempty"`
	GraphNodeID  *string    `bun:"graph_node_id" json:"graphNodeId,omitempty"`
	SyncVersion  int64      `bun:"sync_version,notnull" json:"syncVersion"`
	LastSyncedAt *time.Time `bun:"last_synced_at" json:"lastSyncedAt,omitempty"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// Chunk is a row of kb.chunks with its mirror columns
type Chunk struct {
	bun.BaseModel `bun:"table:kb.chunks,alias:c"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	DocumentID   uuid.UUID  `bun:"document_id,type:uuid,notnull" json:"documentId"`
	ChunkIndex   int        `bun:"chunk_index,notnull" json:"chunkIndex"`
	Text         string     `bun:"text,notnull" json:"text"`
	GraphNodeID  *string    `bun:"graph_node_id" json:"graphNodeId,omitempty"`
	SyncVersion  int64      `bun:"sync_version,notnull" json:"syncVersion"`
	LastSyncedAt *time.Time `bun:"last_synced_at" json:"lastSyncedAt,omitempty"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// GraphEntity is a row of kb.graph_entities
type GraphEntity struct {
	bun.BaseModel `bun:"table:kb.graph_entities,alias:ge"`

	ID              uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	Name            string         `bun:"name,notnull" json:"name"`
	Type            string         `bun:"type,notnull" json:"type"`
	Description     *string        `bun:"description" json:"description,omitempty"`
	Properties      map[string]any `bun:"properties,type:jsonb" json:"properties,omitempty"`
	CentralityScore *float64       `bun:"centrality_score" json:"centralityScore,omitempty"`
	GraphNodeID     *string        `bun:"graph_node_id" json:"graphNodeId,omitempty"`
	SyncVersion     int64          `bun:"sync_version,notnull" json:"syncVersion"`
	LastSyncedAt    *time.Time     `bun:"last_synced_at" json:"lastSyncedAt,omitempty"`
	CreatedAt       time.Time      `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt       time.Time      `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// hasLocalChanges reports whether the row was edited after its last sync.
func (e *GraphEntity) hasLocalChanges() bool {
	return e.LastSyncedAt == nil || e.UpdatedAt.After(*e.LastSyncedAt)
}

// EntityRelationship is a row of kb.graph_entity_relationships
type EntityRelationship struct {
	bun.BaseModel `bun:"table:kb.graph_entity_relationships,alias:ger"`

	ID             uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	SourceEntityID uuid.UUID      `bun:"source_entity_id,type:uuid,notnull" json:"sourceEntityId"`
	TargetEntityID uuid.UUID      `bun:"target_entity_id,type:uuid,notnull" json:"targetEntityId"`
	Type           string         `bun:"type,notnull" json:"type"`
	Properties     map[string]any `bun:"properties,type:jsonb" json:"properties,omitempty"`
	GraphNodeID    *string        `bun:"graph_node_id" json:"graphNodeId,omitempty"`
	SyncVersion    int64          `bun:"sync_version,notnull" json:"syncVersion"`
	LastSyncedAt   *time.Time     `bun:"last_synced_at" json:"lastSyncedAt,omitempty"`
	CreatedAt      time.Time      `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt      time.Time      `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// LogEntry is one append-only row of kb.sync_log
type LogEntry struct {
	bun.BaseModel `bun:"table:kb.sync_log,alias:sl"`

	ID                 uuid.UUID           `bun:"id,pk,type:uuid" json:"id"`
	RunID              uuid.UUID           `bun:"run_id,type:uuid,notnull" json:"runId"`
	Operation          Operation           `bun:"operation,notnull" json:"operation"`
	EntityType         EntityKind          `bun:"entity_type,notnull" json:"entityType"`
	EntityID           *string             `bun:"entity_id" json:"entityId,omitempty"`
	Direction          Direction           `bun:"direction,notnull" json:"direction"`
	Status             Status              `bun:"status,notnull" json:"status"`
	ErrorMessage       *string             `bun:"error_message" json:"errorMessage,omitempty"`
	ConflictResolution *ConflictResolution `bun:"conflict_resolution" json:"conflictResolution,omitempty"`
	Details            map[string]any      `bun:"details,type:jsonb" json:"details,omitempty"`
	CreatedAt          time.Time           `bun:"created_at,notnull,default:now()" json:"createdAt"`
	ProcessedAt        *time.Time          `bun:"processed_at" json:"processedAt,omitempty"`
}

// EntityKind names what a sync item or log row refers to.
type EntityKind string

const (
	KindDocument     EntityKind = "document"
	KindChunk        EntityKind = "chunk"
	KindEntity       EntityKind = "entity"
	KindRelationship EntityKind = "relationship"
	// KindRun marks run-level log rows.
	KindRun EntityKind = "run"
)

// MirrorKinds lists the kinds pushed to the graph, in dependency order.
var MirrorKinds = []EntityKind{KindDocument, KindChunk, KindEntity, KindRelationship}

// table returns the relational table holding kind.
func (k EntityKind) table() (string, error) {
	switch k {
	case KindDocument:
		return "kb.documents", nil
	case KindChunk:
		return "kb.chunks", nil
	case KindEntity:
		return "kb.graph_entities", nil
	case KindRelationship:
		return "kb.graph_entity_relationships", nil
	default:
		return "", fmt.Errorf("no table for entity kind %q", k)
	}
}

// Operation is the action a log row records.
type Operation string

const (
	OpSyncStarted        Operation = "sync_started"
	OpSyncCompleted      Operation = "sync_completed"
	OpSyncFailed         Operation = "sync_failed"
	OpMirrorDocument     Operation = "mirror_document"
	OpMirrorChunk        Operation = "mirror_chunk"
	OpMirrorEntity       Operation = "mirror_entity"
	OpMirrorRelationship Operation = "mirror_relationship"
	OpImportEntity       Operation = "import_entity"
)

// Status is the outcome recorded on a log row.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusConflict Status = "conflict"
)

// ConflictResolution records how a two-sided edit was settled.
type ConflictResolution string

const (
	ResolutionSourceWins ConflictResolution = "source_wins"
	ResolutionTargetWins ConflictResolution = "target_wins"
	ResolutionMerge      ConflictResolution = "merge"
	ResolutionManual     ConflictResolution = "manual"
)
