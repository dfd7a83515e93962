package search

import "time"

// SimilarityParams carries an embedding search request.
type SimilarityParams struct {
	Embedding []float32 `json:"embedding"`
	Limit     int       `json:"limit"`
	Threshold float64   `json:"threshold"`
}

// ChunkHit is a chunk ranked by cosine similarity.
type ChunkHit struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"documentId"`
	ChunkIndex int     `json:"chunkIndex"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// Entity is a kb.graph_entities row with its graph cross reference.
type Entity struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Description  string         `json:"description,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
	GraphNodeID  *string        `json:"graphNodeId,omitempty"`
	SyncVersion  int64          `json:"syncVersion"`
	LastSyncedAt *time.Time     `json:"lastSyncedAt,omitempty"`
}

// EntityHit is an entity ranked by cosine similarity.
type EntityHit struct {
	Entity
	Similarity float64 `json:"similarity"`
}

// Result is the vector store's response envelope.
type Result struct {
	Operation       string      `json:"operation"`
	Chunks          []ChunkHit  `json:"chunks,omitempty"`
	Entities        []EntityHit `json:"entities,omitempty"`
	ResultCount     int         `json:"resultCount"`
	ExecutionTimeMs int64       `json:"executionTimeMs"`
	Threshold       float64     `json:"threshold"`
}
