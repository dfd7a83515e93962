package sync

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/dualstore/internal/testutil"
)

func TestRepository_PendingAndStamp(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	repo := NewRepository(tdb.DB, slog.Default())
	ctx := context.Background()

	name := "report.pdf"
	doc := &Document{ID: uuid.New(), Filename: &name, UpdatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	_, err := tdb.DB.NewInsert().Model(doc).Exec(ctx)
	require.NoError(t, err)

	pending, err := repo.PendingDocuments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	n, err := repo.UnsyncedCount(ctx, KindDocument)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	oldest, err := repo.OldestPendingChange(ctx)
	require.NoError(t, err)
	require.NotNil(t, oldest)

	require.NoError(t, repo.Stamp(ctx, KindDocument, doc.ID, "4:abc:1", 3, pending[0].UpdatedAt))
	// a lower version never rolls sync_version back
	require.NoError(t, repo.Stamp(ctx, KindDocument, doc.ID, "4:abc:1", 2, pending[0].UpdatedAt))

	pending, err = repo.PendingDocuments(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var stamped Document
	require.NoError(t, tdb.DB.NewSelect().Model(&stamped).Where("id = ?", doc.ID).Scan(ctx))
	assert.EqualValues(t, 3, stamped.SyncVersion)
	require.NotNil(t, stamped.GraphNodeID)
	assert.Equal(t, "4:abc:1", *stamped.GraphNodeID)

	oldest, err = repo.OldestPendingChange(ctx)
	require.NoError(t, err)
	assert.Nil(t, oldest)
}

func TestRepository_ImportEntity(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	repo := NewRepository(tdb.DB, slog.Default())
	ctx := context.Background()

	req := ImportRequest{GraphID: "4:node:7", Name: "Ada Lovelace", Type: "Person", SyncVersion: 2}
	out, err := repo.ImportEntity(ctx, req, PolicySourceWins)
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.EqualValues(t, 2, out.SyncVersion)

	// unchanged relational row: plain update, no conflict
	req.Name = "Augusta Ada King"
	req.SyncVersion = 3
	out, err = repo.ImportEntity(ctx, req, PolicySourceWins)
	require.NoError(t, err)
	assert.False(t, out.Conflict)
	assert.True(t, out.Applied)

	// local edit after the last sync conflicts with the next import
	_, err = tdb.DB.NewUpdate().Model((*GraphEntity)(nil)).
		Set("name = ?", "Edited locally").
		Set("updated_at = now() + interval '1 minute'").
		Where("graph_node_id = ?", req.GraphID).
		Exec(ctx)
	require.NoError(t, err)

	req.Name = "From graph"
	out, err = repo.ImportEntity(ctx, req, PolicyTargetWins)
	require.NoError(t, err)
	assert.True(t, out.Conflict)
	assert.False(t, out.Applied)
	require.NotNil(t, out.Resolution)
	assert.Equal(t, ResolutionTargetWins, *out.Resolution)

	var row GraphEntity
	require.NoError(t, tdb.DB.NewSelect().Model(&row).Where("graph_node_id = ?", req.GraphID).Scan(ctx))
	assert.Equal(t, "Edited locally", row.Name)
}

func TestRepository_Log(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	repo := NewRepository(tdb.DB, slog.Default())
	ctx := context.Background()

	runID := uuid.New()
	for _, op := range []Operation{OpSyncStarted, OpSyncCompleted} {
		require.NoError(t, repo.InsertLog(ctx, &LogEntry{
			RunID:      runID,
			Operation:  op,
			EntityType: KindRun,
			Direction:  DirectionVectorToGraph,
			Status:     StatusSuccess,
			CreatedAt:  time.Now().UTC(),
		}))
	}
	require.NoError(t, repo.InsertLog(ctx, &LogEntry{
		RunID:      uuid.New(),
		Operation:  OpSyncStarted,
		EntityType: KindRun,
		Direction:  DirectionVectorToGraph,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}))

	entries, err := repo.RecentLog(ctx, 10, &runID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	last, err := repo.LastSuccessfulSync(ctx)
	require.NoError(t, err)
	assert.NotNil(t, last)

	require.NoError(t, testutil.TruncateTables(ctx, tdb.DB))
	entries, err = repo.RecentLog(ctx, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRepository_LastSuccessfulSyncSkipsDryRuns(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	repo := NewRepository(tdb.DB, slog.Default())
	ctx := context.Background()

	completed := func(createdAt time.Time, details map[string]any) {
		t.Helper()
		require.NoError(t, repo.InsertLog(ctx, &LogEntry{
			RunID:      uuid.New(),
			Operation:  OpSyncCompleted,
			EntityType: KindRun,
			Direction:  DirectionVectorToGraph,
			Status:     StatusSuccess,
			Details:    details,
			CreatedAt:  createdAt,
		}))
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	completed(now, map[string]any{"dryRun": true})

	last, err := repo.LastSuccessfulSync(ctx)
	require.NoError(t, err)
	assert.Nil(t, last, "a dry run is not a successful sync")

	pushed := now.Add(-time.Hour)
	completed(pushed, map[string]any{"dryRun": false, "documentsProcessed": 3})
	completed(now.Add(time.Minute), map[string]any{"dryRun": true})

	last, err = repo.LastSuccessfulSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.WithinDuration(t, pushed, *last, time.Millisecond)
}
