package graph

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/emergent-company/dualstore/pkg/apperror"
	"github.com/emergent-company/dualstore/pkg/tracing"
)

// Mirror labels for relational rows written into the graph.
const (
	LabelDocument = "Document"
	LabelChunk    = "Chunk"
	LabelEntity   = "Entity"
)

// ErrMissingEndpoint is returned when a relationship's endpoints, or a chunk's
// parent document, are not yet mirrored into the graph.
var ErrMissingEndpoint = errors.New("endpoints not present in graph")

// MirrorNode is one relational row to MERGE into the graph.
type MirrorNode struct {
	Label       string
	ID          string
	Properties  map[string]any
	SyncVersion int64
	// ParentID links a chunk to its document with HAS_CHUNK when set.
	ParentID string
}

// MirrorEdge is one relational relationship row to MERGE into the graph.
type MirrorEdge struct {
	ID          string
	Type        string
	SourceID    string
	TargetID    string
	Properties  map[string]any
	SyncVersion int64
}

// MirrorResult is the graph identity and version after a write.
type MirrorResult struct {
	GraphID     string
	SyncVersion int64
}

// NativeEntity is a graph entity that has not been mirrored into the relational store yet.
type NativeEntity struct {
	Node            Node
	RelationalID    string
	SyncVersion     int64
	MirroredVersion int64
}

// The CASE guards keep sync_version monotonic: a write carrying an older
// version never lowers what the graph already holds.
const mergeNodeQuery = `MERGE (n:%s {id: $id})
WITH n, CASE WHEN coalesce(n.sync_version, 0) > $version THEN n.sync_version ELSE $version END AS v
SET n += $props,
    n.relational_id = $id,
    n.sync_version = v,
    n.mirrored_version = v,
    n.last_synced_at = datetime()
RETURN elementId(n) AS graph_id, v AS sync_version`

// mergeChunkQuery matches the parent first so a chunk whose document is not
// mirrored yet returns no row and is never written without its HAS_CHUNK edge.
const mergeChunkQuery = `MATCH (p:Document {id: $parentId})
MERGE (n:Chunk {id: $id})
WITH p, n, CASE WHEN coalesce(n.sync_version, 0) > $version THEN n.sync_version ELSE $version END AS v
SET n += $props,
    n.relational_id = $id,
    n.sync_version = v,
    n.mirrored_version = v,
    n.last_synced_at = datetime()
MERGE (p)-[:HAS_CHUNK]->(n)
RETURN elementId(n) AS graph_id, v AS sync_version`

// MergeNode upserts a Document, Chunk or Entity node keyed by its relational id.
func (s *Service) MergeNode(ctx context.Context, n MirrorNode) (MirrorResult, error) {
	switch n.Label {
	case LabelDocument, LabelChunk, LabelEntity:
	default:
		return MirrorResult{}, apperror.NewValidation(fmt.Sprintf("unsupported mirror label %q", n.Label))
	}
	if n.ID == "" {
		return MirrorResult{}, apperror.NewValidation("mirror node id is required")
	}

	props := n.Properties
	if props == nil {
		props = map[string]any{}
	}
	params := map[string]any{
		"id":       n.ID,
		"props":    props,
		"version":  n.SyncVersion,
		"parentId": n.ParentID,
	}

	ctx, span := tracing.Start(ctx, "graph.merge_node",
		attribute.String("dualstore.label", n.Label),
		attribute.String("dualstore.entity.id", n.ID),
	)
	defer span.End()

	query := fmt.Sprintf(mergeNodeQuery, n.Label)
	withParent := n.Label == LabelChunk && n.ParentID != ""
	if withParent {
		query = mergeChunkQuery
	}
	records, err := s.runWrite(ctx, "merge_"+n.Label, query, params)
	if err != nil {
		tracing.Fail(span, err)
		return MirrorResult{}, err
	}
	if len(records) == 0 {
		if withParent {
			return MirrorResult{}, fmt.Errorf("merge chunk %s (document %s): %w", n.ID, n.ParentID, ErrMissingEndpoint)
		}
		return MirrorResult{}, fmt.Errorf("merge %s %s: no row returned", n.Label, n.ID)
	}
	return MirrorResult{
		GraphID:     records[0].String("graph_id"),
		SyncVersion: records[0].Int("sync_version"),
	}, nil
}

const mergeEdgeQuery = `MATCH (a:Entity {id: $sourceId}), (b:Entity {id: $targetId})
MERGE (a)-[r:%s {id: $id}]->(b)
WITH r, CASE WHEN coalesce(r.sync_version, 0) > $version THEN r.sync_version ELSE $version END AS v
SET r += $props,
    r.relational_id = $id,
    r.sync_version = v,
    r.mirrored_version = v,
    r.last_synced_at = datetime()
RETURN elementId(r) AS graph_id, v AS sync_version`

// MergeRelationship upserts a typed relationship between two mirrored entities.
func (s *Service) MergeRelationship(ctx context.Context, e MirrorEdge) (MirrorResult, error) {
	if !identifierPattern.MatchString(e.Type) {
		return MirrorResult{}, apperror.NewValidation(fmt.Sprintf("invalid relationship type %q", e.Type))
	}
	if e.ID == "" || e.SourceID == "" || e.TargetID == "" {
		return MirrorResult{}, apperror.NewValidation("relationship id, source and target are required")
	}

	props := e.Properties
	if props == nil {
		props = map[string]any{}
	}
	params := map[string]any{
		"id":       e.ID,
		"sourceId": e.SourceID,
		"targetId": e.TargetID,
		"props":    props,
		"version":  e.SyncVersion,
	}

	ctx, span := tracing.Start(ctx, "graph.merge_relationship",
		attribute.String("dualstore.relationship.type", e.Type),
		attribute.String("dualstore.relationship.id", e.ID),
	)
	defer span.End()

	records, err := s.runWrite(ctx, "merge_relationship", fmt.Sprintf(mergeEdgeQuery, e.Type), params)
	if err != nil {
		tracing.Fail(span, err)
		return MirrorResult{}, err
	}
	if len(records) == 0 {
		return MirrorResult{}, fmt.Errorf("merge relationship %s (%s -> %s): %w", e.ID, e.SourceID, e.TargetID, ErrMissingEndpoint)
	}
	return MirrorResult{
		GraphID:     records[0].String("graph_id"),
		SyncVersion: records[0].Int("sync_version"),
	}, nil
}

const pendingNativeQuery = `MATCH (e:Entity)
WHERE e.relational_id IS NULL OR coalesce(e.mirrored_version, 0) < coalesce(e.sync_version, 0)
RETURN e AS node, e.relational_id AS relational_id,
       coalesce(e.sync_version, 0) AS sync_version,
       coalesce(e.mirrored_version, 0) AS mirrored_version
ORDER BY elementId(e)
LIMIT $limit`

// PendingNativeEntities lists graph entities the relational store has not
// caught up with: never mirrored, or edited in the graph since the last mirror.
func (s *Service) PendingNativeEntities(ctx context.Context, limit int) ([]NativeEntity, error) {
	ctx, span := tracing.Start(ctx, "graph.pending_native_entities")
	defer span.End()

	records, err := s.run(ctx, "pending_native_entities", pendingNativeQuery, map[string]any{"limit": int64(limit)})
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	out := make([]NativeEntity, 0, len(records))
	for _, rec := range records {
		v, ok := rec.Get("node")
		if !ok || v.Kind != KindNode {
			continue
		}
		out = append(out, NativeEntity{
			Node:            v.Node,
			RelationalID:    rec.String("relational_id"),
			SyncVersion:     rec.Int("sync_version"),
			MirroredVersion: rec.Int("mirrored_version"),
		})
	}
	return out, nil
}

const markMirroredQuery = `MATCH (e:Entity) WHERE elementId(e) = $graphId
WITH e, CASE WHEN coalesce(e.sync_version, 0) > $version THEN e.sync_version ELSE $version END AS v
SET e.id = coalesce(e.id, $relationalId),
    e.relational_id = $relationalId,
    e.sync_version = v,
    e.mirrored_version = v,
    e.last_synced_at = datetime()
RETURN elementId(e) AS graph_id, v AS sync_version`

// MarkMirrored stamps a graph entity after it was imported into the relational store.
func (s *Service) MarkMirrored(ctx context.Context, graphID, relationalID string, version int64) error {
	ctx, span := tracing.Start(ctx, "graph.mark_mirrored", attribute.String("dualstore.graph.id", graphID))
	defer span.End()

	records, err := s.runWrite(ctx, "mark_mirrored", markMirroredQuery, map[string]any{
		"graphId":      graphID,
		"relationalId": relationalID,
		"version":      version,
	})
	if err != nil {
		tracing.Fail(span, err)
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("mark mirrored: graph entity %s not found", graphID)
	}
	return nil
}
