package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/emergent-company/dualstore/internal/database"
	"github.com/emergent-company/dualstore/pkg/apperror"
	"github.com/emergent-company/dualstore/pkg/logger"
)

// Repository reads pending mirror rows, stamps them, and owns the sync log.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new sync repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("sync.repo")),
	}
}

// PendingDocuments returns up to limit documents whose mirror is missing or stale, oldest change first.
func (r *Repository) PendingDocuments(ctx context.Context, limit int) ([]Document, error) {
	var rows []Document
	err := r.db.NewSelect().
		Model(&rows).
		Where(pendingCondition).
		Order("updated_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(fmt.Errorf("list pending documents: %w", err))
	}
	return rows, nil
}

// PendingChunks returns up to limit chunks whose mirror is missing or stale.
func (r *Repository) PendingChunks(ctx context.Context, limit int) ([]Chunk, error) {
	var rows []Chunk
	err := r.db.NewSelect().
		Model(&rows).
		Where(pendingCondition).
		Order("updated_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(fmt.Errorf("list pending chunks: %w", err))
	}
	return rows, nil
}

// PendingEntities returns up to limit entities whose mirror is missing or stale.
func (r *Repository) PendingEntities(ctx context.Context, limit int) ([]GraphEntity, error) {
	var rows []GraphEntity
	err := r.db.NewSelect().
		Model(&rows).
		Where(pendingCondition).
		Order("updated_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(fmt.Errorf("list pending entities: %w", err))
	}
	return rows, nil
}

// PendingRelationships returns up to limit relationships whose mirror is missing or stale.
func (r *Repository) PendingRelationships(ctx context.Context, limit int) ([]EntityRelationship, error) {
	var rows []EntityRelationship
	err := r.db.NewSelect().
		Model(&rows).
		Where(pendingCondition).
		Order("updated_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(fmt.Errorf("list pending relationships: %w", err))
	}
	return rows, nil
}

// Stamp records a successful mirror write. last_synced_at is set to the
// updated_at the row had when it was read, so an edit that lands while the
// item is in flight keeps the row pending. sync_version never decreases.
func (r *Repository) Stamp(ctx context.Context, kind EntityKind, id uuid.UUID, graphID string, version int64, observedUpdatedAt time.Time) error {
	table, err := kind.table()
	if err != nil {
		return err
	}

	_, err = r.db.NewUpdate().
		TableExpr(table).
		Set("graph_node_id = ?", graphID).
		Set("last_synced_at = ?", observedUpdatedAt).
		Set("sync_version = GREATEST(sync_version, ?)", version).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(fmt.Errorf("stamp %s %s: %w", kind, id, err))
	}
	return nil
}

// ImportEntity writes a graph-native entity into kb.graph_entities inside a
// transaction. An existing row edited since its last sync is a conflict,
// settled by policy: source_wins overwrites it with the graph's version,
// target_wins leaves it untouched.
func (r *Repository) ImportEntity(ctx context.Context, req ImportRequest, policy ConflictPolicy) (ImportOutcome, error) {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return ImportOutcome{}, apperror.ErrDatabase.WithInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, found, err := r.lockEntity(ctx, tx, req)
	if err != nil {
		return ImportOutcome{}, err
	}

	version := max(req.SyncVersion, 1)
	now := time.Now().UTC()

	if !found {
		id, perr := uuid.Parse(req.RelationalID)
		if perr != nil {
			id = uuid.New()
		}
		graphID := req.GraphID
		row := &GraphEntity{
			ID:           id,
			Name:         req.Name,
			Type:         req.Type,
			Description:  req.Description,
			Properties:   req.Properties,
			GraphNodeID:  &graphID,
			SyncVersion:  version,
			LastSyncedAt: &now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return ImportOutcome{}, apperror.ErrDatabase.WithInternal(fmt.Errorf("insert imported entity: %w", err))
		}
		if err := tx.Commit(); err != nil {
			return ImportOutcome{}, apperror.ErrDatabase.WithInternal(err)
		}
		return ImportOutcome{ID: id.String(), SyncVersion: version, Created: true, Applied: true}, nil
	}

	out := ImportOutcome{
		ID:          existing.ID.String(),
		SyncVersion: max(existing.SyncVersion, version),
		Conflict:    existing.hasLocalChanges(),
	}
	if out.Conflict {
		res := ResolutionSourceWins
		if policy == PolicyTargetWins {
			res = ResolutionTargetWins
		}
		out.Resolution = &res
	}

	if out.Conflict && policy == PolicyTargetWins {
		if err := tx.Commit(); err != nil {
			return ImportOutcome{}, apperror.ErrDatabase.WithInternal(err)
		}
		return out, nil
	}

	_, err = tx.NewUpdate().
		Model((*GraphEntity)(nil)).
		Set("name = ?", req.Name).
		Set("type = ?", req.Type).
		Set("description = ?", req.Description).
		Set("properties = ?", req.Properties).
		Set("graph_node_id = ?", req.GraphID).
		Set("sync_version = GREATEST(sync_version, ?)", version).
		Set("last_synced_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", existing.ID).
		Exec(ctx)
	if err != nil {
		return ImportOutcome{}, apperror.ErrDatabase.WithInternal(fmt.Errorf("update imported entity: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return ImportOutcome{}, apperror.ErrDatabase.WithInternal(err)
	}
	out.Applied = true
	return out, nil
}

// lockEntity finds the row an import targets, by relational id first and
// then by graph element id, and locks it for the rest of the transaction.
func (r *Repository) lockEntity(ctx context.Context, tx bun.IDB, req ImportRequest) (*GraphEntity, bool, error) {
	var row GraphEntity

	if id, err := uuid.Parse(req.RelationalID); err == nil {
		err := tx.NewSelect().Model(&row).Where("id = ?", id).For("UPDATE").Scan(ctx)
		if err == nil {
			return &row, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, apperror.ErrDatabase.WithInternal(fmt.Errorf("lock entity %s: %w", id, err))
		}
	}

	err := tx.NewSelect().Model(&row).Where("graph_node_id = ?", req.GraphID).Limit(1).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperror.ErrDatabase.WithInternal(fmt.Errorf("lock entity by graph id: %w", err))
	}
	return &row, true, nil
}

// InsertLog appends one sync log row. Rows are never updated.
func (r *Repository) InsertLog(ctx context.Context, entry *LogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if _, err := r.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("insert sync log: %w", err)
	}
	return nil
}

// RecentLog lists the newest sync log rows, optionally for one run.
func (r *Repository) RecentLog(ctx context.Context, limit int, runID *uuid.UUID) ([]LogEntry, error) {
	entries := []LogEntry{}
	q := r.db.NewSelect().
		Model(&entries).
		Order("created_at DESC").
		Limit(limit)
	if runID != nil {
		q = q.Where("run_id = ?", *runID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(fmt.Errorf("list sync log: %w", err))
	}
	return entries, nil
}

// UnsyncedCount counts pending rows of kind.
func (r *Repository) UnsyncedCount(ctx context.Context, kind EntityKind) (int64, error) {
	table, err := kind.table()
	if err != nil {
		return 0, err
	}
	n, err := r.db.NewSelect().TableExpr(table).Where(pendingCondition).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count unsynced %s: %w", kind, err)
	}
	return int64(n), nil
}

// OldestPendingChange returns the earliest updated_at among pending rows of
// every mirrored kind, or nil when nothing is pending.
func (r *Repository) OldestPendingChange(ctx context.Context) (*time.Time, error) {
	var oldest sql.NullTime
	err := r.db.NewRaw(`SELECT min(updated_at) FROM (
	SELECT min(updated_at) AS updated_at FROM kb.documents WHERE ` + pendingCondition + `
	UNION ALL SELECT min(updated_at) FROM kb.chunks WHERE ` + pendingCondition + `
	UNION ALL SELECT min(updated_at) FROM kb.graph_entities WHERE ` + pendingCondition + `
	UNION ALL SELECT min(updated_at) FROM kb.graph_entity_relationships WHERE ` + pendingCondition + `
) pending`).Scan(ctx, &oldest)
	if err != nil {
		return nil, fmt.Errorf("oldest pending change: %w", err)
	}
	if !oldest.Valid {
		return nil, nil
	}
	return &oldest.Time, nil
}

// LastSuccessfulSync returns when the last run completed without errors.
// Dry runs mirror nothing and do not count.
func (r *Repository) LastSuccessfulSync(ctx context.Context) (*time.Time, error) {
	var last sql.NullTime
	err := r.db.NewSelect().
		Model((*LogEntry)(nil)).
		ColumnExpr("max(created_at)").
		Where("operation = ?", OpSyncCompleted).
		Where("coalesce((details->>'dryRun')::boolean, false) = false").
		Scan(ctx, &last)
	if err != nil {
		return nil, fmt.Errorf("last successful sync: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}
