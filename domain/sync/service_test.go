package sync

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/dualstore/domain/graph"
	"github.com/emergent-company/dualstore/internal/config"
)

type mockStore struct {
	mock.Mock

	mu      stdsync.Mutex
	entries []LogEntry
}

func (m *mockStore) PendingDocuments(ctx context.Context, limit int) ([]Document, error) {
	args := m.Called(ctx, limit)
	rows, _ := args.Get(0).([]Document)
	return rows, args.Error(1)
}

func (m *mockStore) PendingChunks(ctx context.Context, limit int) ([]Chunk, error) {
	args := m.Called(ctx, limit)
	rows, _ := args.Get(0).([]Chunk)
	return rows, args.Error(1)
}

func (m *mockStore) PendingEntities(ctx context.Context, limit int) ([]GraphEntity, error) {
	args := m.Called(ctx, limit)
	rows, _ := args.Get(0).([]GraphEntity)
	return rows, args.Error(1)
}

func (m *mockStore) PendingRelationships(ctx context.Context, limit int) ([]EntityRelationship, error) {
	args := m.Called(ctx, limit)
	rows, _ := args.Get(0).([]EntityRelationship)
	return rows, args.Error(1)
}

func (m *mockStore) Stamp(ctx context.Context, kind EntityKind, id uuid.UUID, graphID string, version int64, observed time.Time) error {
	return m.Called(ctx, kind, id, graphID, version, observed).Error(0)
}

func (m *mockStore) ImportEntity(ctx context.Context, req ImportRequest, policy ConflictPolicy) (ImportOutcome, error) {
	args := m.Called(ctx, req, policy)
	out, _ := args.Get(0).(ImportOutcome)
	return out, args.Error(1)
}

func (m *mockStore) InsertLog(ctx context.Context, entry *LogEntry) error {
	err := m.Called(ctx, entry).Error(0)
	if err == nil {
		m.mu.Lock()
		m.entries = append(m.entries, *entry)
		m.mu.Unlock()
	}
	return err
}

func (m *mockStore) RecentLog(ctx context.Context, limit int, runID *uuid.UUID) ([]LogEntry, error) {
	args := m.Called(ctx, limit, runID)
	rows, _ := args.Get(0).([]LogEntry)
	return rows, args.Error(1)
}

func (m *mockStore) UnsyncedCount(ctx context.Context, kind EntityKind) (int64, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) OldestPendingChange(ctx context.Context) (*time.Time, error) {
	args := m.Called(ctx)
	t, _ := args.Get(0).(*time.Time)
	return t, args.Error(1)
}

func (m *mockStore) LastSuccessfulSync(ctx context.Context) (*time.Time, error) {
	args := m.Called(ctx)
	t, _ := args.Get(0).(*time.Time)
	return t, args.Error(1)
}

func (m *mockStore) logged() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogEntry(nil), m.entries...)
}

type mockMirror struct{ mock.Mock }

func (m *mockMirror) MergeNode(ctx context.Context, n graph.MirrorNode) (graph.MirrorResult, error) {
	args := m.Called(ctx, n)
	res, _ := args.Get(0).(graph.MirrorResult)
	return res, args.Error(1)
}

func (m *mockMirror) MergeRelationship(ctx context.Context, e graph.MirrorEdge) (graph.MirrorResult, error) {
	args := m.Called(ctx, e)
	res, _ := args.Get(0).(graph.MirrorResult)
	return res, args.Error(1)
}

func (m *mockMirror) PendingNativeEntities(ctx context.Context, limit int) ([]graph.NativeEntity, error) {
	args := m.Called(ctx, limit)
	rows, _ := args.Get(0).([]graph.NativeEntity)
	return rows, args.Error(1)
}

func (m *mockMirror) MarkMirrored(ctx context.Context, graphID, relationalID string, version int64) error {
	return m.Called(ctx, graphID, relationalID, version).Error(0)
}

func testConfig() *config.Config {
	return &config.Config{Sync: config.SyncConfig{
		BatchSize:        100,
		MaxBatchSize:     1000,
		DefaultDirection: string(DirectionVectorToGraph),
		Concurrency:      1,
		ConflictPolicy:   string(PolicySourceWins),
		ItemTimeout:      time.Second,
	}}
}

func newTestService(t *testing.T, cfg *config.Config) (*Service, *mockStore, *mockMirror) {
	t.Helper()
	store := &mockStore{}
	mirror := &mockMirror{}
	svc := NewService(store, mirror, nil, cfg, slog.Default())
	return svc, store, mirror
}

// emptyPush makes every pending list after the given kinds return nothing.
func emptyPush(store *mockStore, except ...EntityKind) {
	skip := map[EntityKind]bool{}
	for _, k := range except {
		skip[k] = true
	}
	if !skip[KindDocument] {
		store.On("PendingDocuments", mock.Anything, mock.Anything).Return([]Document{}, nil)
	}
	if !skip[KindChunk] {
		store.On("PendingChunks", mock.Anything, mock.Anything).Return([]Chunk{}, nil)
	}
	if !skip[KindEntity] {
		store.On("PendingEntities", mock.Anything, mock.Anything).Return([]GraphEntity{}, nil)
	}
	if !skip[KindRelationship] {
		store.On("PendingRelationships", mock.Anything, mock.Anything).Return([]EntityRelationship{}, nil)
	}
}

func strPtr(s string) *string { return &s }

func TestSync_MirrorsDocumentWithNextVersion(t *testing.T) {
	svc, store, mirror := newTestService(t, testConfig())

	docID := uuid.New()
	updated := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.On("PendingDocuments", mock.Anything, 100).Return([]Document{{
		ID:          docID,
		Filename:    strPtr("report.pdf"),
		SyncVersion: 3,
		UpdatedAt:   updated,
	}}, nil)
	emptyPush(store, KindDocument)
	store.On("InsertLog", mock.Anything, mock.Anything).Return(nil)

	mirror.On("MergeNode", mock.Anything, mock.MatchedBy(func(n graph.MirrorNode) bool {
		return n.Label == graph.LabelDocument &&
			n.ID == docID.String() &&
			n.SyncVersion == 4 &&
			n.Properties["filename"] == "report.pdf"
	})).Return(graph.MirrorResult{GraphID: "4:abc:1", SyncVersion: 4}, nil)
	store.On("Stamp", mock.Anything, KindDocument, docID, "4:abc:1", int64(4), updated).Return(nil)

	res := svc.Sync(context.Background(), Options{})

	assert.True(t, res.Success)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, DirectionVectorToGraph, res.Direction)
	assert.Equal(t, 1, res.DocumentsProcessed)
	assert.Empty(t, res.Errors)
	assert.Equal(t, StateCompleted, svc.State())
	assert.False(t, svc.Running())
	mirror.AssertExpectations(t)
	store.AssertExpectations(t)

	entries := store.logged()
	require.Len(t, entries, 3)
	assert.Equal(t, OpSyncStarted, entries[0].Operation)
	assert.Equal(t, OpMirrorDocument, entries[1].Operation)
	assert.Equal(t, StatusSuccess, entries[1].Status)
	assert.Equal(t, OpSyncCompleted, entries[2].Operation)
	for _, e := range entries {
		assert.Equal(t, res.RunID, e.RunID)
	}
}

func TestSync_ItemFailureDoesNotStopRun(t *testing.T) {
	svc, store, mirror := newTestService(t, testConfig())

	docs := make([]Document, 5)
	for i := range docs {
		docs[i] = Document{ID: uuid.New()}
	}
	bad := docs[2].ID
	store.On("PendingDocuments", mock.Anything, mock.Anything).Return(docs, nil)
	emptyPush(store, KindDocument)
	store.On("InsertLog", mock.Anything, mock.Anything).Return(nil)

	mirror.On("MergeNode", mock.Anything, mock.MatchedBy(func(n graph.MirrorNode) bool { return n.ID == bad.String() })).
		Return(graph.MirrorResult{}, errors.New("neo4j: connection reset"))
	mirror.On("MergeNode", mock.Anything, mock.MatchedBy(func(n graph.MirrorNode) bool { return n.ID != bad.String() })).
		Return(graph.MirrorResult{GraphID: "g-ok", SyncVersion: 1}, nil)
	store.On("Stamp", mock.Anything, KindDocument, mock.Anything, "g-ok", int64(1), mock.Anything).Return(nil)

	res := svc.Sync(context.Background(), Options{})

	assert.False(t, res.Success)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 5, res.DocumentsProcessed, "every attempted item is counted")
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], bad.String())
	assert.Contains(t, res.Errors[0], "connection reset")
	store.AssertNumberOfCalls(t, "Stamp", 4)

	entries := store.logged()
	last := entries[len(entries)-1]
	assert.Equal(t, OpSyncFailed, last.Operation)
	assert.Equal(t, StatusFailed, last.Status)

	statuses := map[Status]int{}
	for _, e := range entries {
		if e.Operation != OpMirrorDocument {
			continue
		}
		statuses[e.Status]++
		if e.Status == StatusFailed {
			require.NotNil(t, e.EntityID)
			assert.Equal(t, bad.String(), *e.EntityID)
			require.NotNil(t, e.ErrorMessage)
		}
	}
	assert.Equal(t, map[Status]int{StatusSuccess: 4, StatusFailed: 1}, statuses)
}

func TestSync_DryRunWritesNothing(t *testing.T) {
	svc, store, mirror := newTestService(t, testConfig())

	store.On("PendingDocuments", mock.Anything, mock.Anything).Return([]Document{{ID: uuid.New()}, {ID: uuid.New()}}, nil)
	store.On("PendingChunks", mock.Anything, mock.Anything).Return([]Chunk{{ID: uuid.New()}}, nil)
	emptyPush(store, KindDocument, KindChunk)
	store.On("InsertLog", mock.Anything, mock.Anything).Return(nil)

	res := svc.Sync(context.Background(), Options{DryRun: true})

	assert.True(t, res.Success)
	assert.True(t, res.DryRun)
	assert.Equal(t, 2, res.DocumentsProcessed)
	assert.Equal(t, 1, res.ChunksProcessed)
	mirror.AssertNotCalled(t, "MergeNode", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Stamp", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	entries := store.logged()
	require.Len(t, entries, 2)
	assert.Equal(t, OpSyncStarted, entries[0].Operation)
	assert.Equal(t, OpSyncCompleted, entries[1].Operation)
}

func TestSync_RejectsConcurrentRun(t *testing.T) {
	svc, store, _ := newTestService(t, testConfig())
	svc.running.Store(true)

	res := svc.Sync(context.Background(), Options{})

	assert.False(t, res.Success)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, []string{ErrSyncInProgress.Error()}, res.Errors)
	store.AssertNotCalled(t, "PendingDocuments", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "InsertLog", mock.Anything, mock.Anything)
	assert.True(t, svc.Running(), "a rejected call must not release the active run")
}

func TestSync_PendingLookupFailureStopsRun(t *testing.T) {
	svc, store, _ := newTestService(t, testConfig())

	store.On("PendingDocuments", mock.Anything, mock.Anything).Return(nil, errors.New("relation kb.documents does not exist"))
	store.On("InsertLog", mock.Anything, mock.Anything).Return(nil)

	res := svc.Sync(context.Background(), Options{})

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "list pending document rows")
	store.AssertNotCalled(t, "PendingChunks", mock.Anything, mock.Anything)

	entries := store.logged()
	assert.Equal(t, OpSyncFailed, entries[len(entries)-1].Operation)
}

func TestSync_LogWriteFailureIsNotASyncError(t *testing.T) {
	svc, store, mirror := newTestService(t, testConfig())

	id := uuid.New()
	store.On("PendingDocuments", mock.Anything, mock.Anything).Return([]Document{{ID: id}}, nil)
	emptyPush(store, KindDocument)
	store.On("InsertLog", mock.Anything, mock.Anything).Return(errors.New("sync_log is read only"))
	mirror.On("MergeNode", mock.Anything, mock.Anything).Return(graph.MirrorResult{GraphID: "g1", SyncVersion: 1}, nil)
	store.On("Stamp", mock.Anything, KindDocument, id, "g1", int64(1), mock.Anything).Return(nil)

	res := svc.Sync(context.Background(), Options{})

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.DocumentsProcessed)
	assert.Empty(t, res.Errors)
}

func TestSync_RelationshipWithMissingEndpointFails(t *testing.T) {
	svc, store, mirror := newTestService(t, testConfig())

	rel := EntityRelationship{
		ID:             uuid.New(),
		SourceEntityID: uuid.New(),
		TargetEntityID: uuid.New(),
		Type:           "WORKS_AT",
		Properties:     map[string]any{"since": "2020", "sync_version": 9},
	}
	store.On("PendingRelationships", mock.Anything, mock.Anything).Return([]EntityRelationship{rel}, nil)
	emptyPush(store, KindRelationship)
	store.On("InsertLog", mock.Anything, mock.Anything).Return(nil)
	mirror.On("MergeRelationship", mock.Anything, mock.MatchedBy(func(e graph.MirrorEdge) bool {
		_, reserved := e.Properties["sync_version"]
		return e.Type == "WORKS_AT" && e.SyncVersion == 1 && e.Properties["since"] == "2020" && !reserved
	})).Return(graph.MirrorResult{}, graph.ErrMissingEndpoint)

	res := svc.Sync(context.Background(), Options{})

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.RelationshipsProcessed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "not mirrored yet")
	mirror.AssertExpectations(t)
}

func TestSync_ChunkWaitsForParentDocument(t *testing.T) {
	svc, store, mirror := newTestService(t, testConfig())

	chunk := Chunk{ID: uuid.New(), DocumentID: uuid.New(), Text: "orphan"}
	store.On("PendingChunks", mock.Anything, mock.Anything).Return([]Chunk{chunk}, nil)
	emptyPush(store, KindChunk)
	store.On("InsertLog", mock.Anything, mock.Anything).Return(nil)
	mirror.On("MergeNode", mock.Anything, mock.MatchedBy(func(n graph.MirrorNode) bool {
		return n.Label == graph.LabelChunk && n.ParentID == chunk.DocumentID.String()
	})).Return(graph.MirrorResult{}, graph.ErrMissingEndpoint)

	res := svc.Sync(context.Background(), Options{})

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.ChunksProcessed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "parent document")
	store.AssertNotCalled(t, "Stamp", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mirror.AssertExpectations(t)
}

func TestSync_SecondRunWithNothingNewIsANoop(t *testing.T) {
	svc, store, mirror := newTestService(t, testConfig())

	doc := Document{ID: uuid.New(), Filename: strPtr("handbook.pdf")}
	store.On("PendingDocuments", mock.Anything, mock.Anything).Return([]Document{doc}, nil).Once()
	store.On("PendingDocuments", mock.Anything, mock.Anything).Return([]Document{}, nil)
	emptyPush(store, KindDocument)
	store.On("InsertLog", mock.Anything, mock.Anything).Return(nil)
	mirror.On("MergeNode", mock.Anything, mock.Anything).Return(graph.MirrorResult{GraphID: "g1", SyncVersion: 1}, nil).Once()
	store.On("Stamp", mock.Anything, KindDocument, doc.ID, "g1", int64(1), mock.Anything).Return(nil).Once()

	first := svc.Sync(context.Background(), Options{})
	require.True(t, first.Success)
	require.Equal(t, 1, first.DocumentsProcessed)
	before := len(store.logged())

	second := svc.Sync(context.Background(), Options{})

	assert.True(t, second.Success)
	assert.Zero(t, second.DocumentsProcessed)
	assert.Zero(t, second.EntitiesProcessed)
	assert.Empty(t, second.Errors)
	rows := store.logged()[before:]
	require.Len(t, rows, 2, "only the start and completion rows")
	assert.Equal(t, OpSyncStarted, rows[0].Operation)
	assert.Equal(t, OpSyncCompleted, rows[1].Operation)
	mirror.AssertNumberOfCalls(t, "MergeNode", 1)
	store.AssertNumberOfCalls(t, "Stamp", 1)
}

func TestSync_PullImportsGraphNativeEntities(t *testing.T) {
	svc, store, mirror := newTestService(t, testConfig())

	native := graph.NativeEntity{
		Node: graph.Node{
			ID:     "4:abc:77",
			Labels: []string{"Entity", "Person"},
			Properties: map[string]any{
				"name":           "Ada Lovelace",
				"description":    "mathematician",
				"born":           int64(1815),
				"sync_version":   int64(2),
				"last_synced_at": "2026-01-01",
			},
		},
		SyncVersion: 2,
	}
	mirror.On("PendingNativeEntities", mock.Anything, 100).Return([]graph.NativeEntity{native}, nil)
	store.On("InsertLog", mock.Anything, mock.Anything).Return(nil)

	store.On("ImportEntity", mock.Anything, mock.MatchedBy(func(req ImportRequest) bool {
		_, hasName := req.Properties["name"]
		_, hasVersion := req.Properties["sync_version"]
		return req.GraphID == "4:abc:77" &&
			req.Name == "Ada Lovelace" &&
			req.Type == "Person" &&
			req.Description != nil && *req.Description == "mathematician" &&
			req.Properties["born"] == int64(1815) &&
			!hasName && !hasVersion &&
			req.SyncVersion == 2
	}), PolicySourceWins).Return(ImportOutcome{ID: "rel-1", SyncVersion: 2, Created: true, Applied: true}, nil)
	mirror.On("MarkMirrored", mock.Anything, "4:abc:77", "rel-1", int64(2)).Return(nil)

	res := svc.Sync(context.Background(), Options{Direction: DirectionGraphToVector})

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.EntitiesProcessed)
	assert.Equal(t, 0, res.Conflicts)
	store.AssertNotCalled(t, "PendingDocuments", mock.Anything, mock.Anything)
	mirror.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestSync_PullRecordsConflict(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.ConflictPolicy = string(PolicyTargetWins)
	svc, store, mirror := newTestService(t, cfg)

	native := graph.NativeEntity{
		Node:         graph.Node{ID: "4:abc:5", Labels: []string{"Entity"}, Properties: map[string]any{"name": "Acme"}},
		RelationalID: uuid.NewString(),
		SyncVersion:  4,
	}
	resolution := ResolutionTargetWins
	mirror.On("PendingNativeEntities", mock.Anything, mock.Anything).Return([]graph.NativeEntity{native}, nil)
	store.On("InsertLog", mock.Anything, mock.Anything).Return(nil)
	store.On("ImportEntity", mock.Anything, mock.Anything, PolicyTargetWins).
		Return(ImportOutcome{ID: native.RelationalID, SyncVersion: 3, Conflict: true, Resolution: &resolution}, nil)
	mirror.On("MarkMirrored", mock.Anything, "4:abc:5", native.RelationalID, int64(3)).Return(nil)

	res := svc.Sync(context.Background(), Options{Direction: DirectionGraphToVector})

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, 1, res.EntitiesProcessed)

	var conflict *LogEntry
	for _, e := range store.logged() {
		if e.Operation == OpImportEntity {
			conflict = &e
		}
	}
	require.NotNil(t, conflict)
	assert.Equal(t, StatusConflict, conflict.Status)
	require.NotNil(t, conflict.ConflictResolution)
	assert.Equal(t, ResolutionTargetWins, *conflict.ConflictResolution)
}

func TestSync_BidirectionalPushesBeforePulling(t *testing.T) {
	svc, store, mirror := newTestService(t, testConfig())

	var order []string
	store.On("PendingDocuments", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "push") }).
		Return([]Document{}, nil)
	emptyPush(store, KindDocument)
	mirror.On("PendingNativeEntities", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "pull") }).
		Return([]graph.NativeEntity{}, nil)
	store.On("InsertLog", mock.Anything, mock.Anything).Return(nil)

	res := svc.Sync(context.Background(), Options{Direction: DirectionBidirectional})

	assert.True(t, res.Success)
	assert.Equal(t, []string{"push", "pull"}, order)
}

func TestSync_UnknownDirection(t *testing.T) {
	svc, store, _ := newTestService(t, testConfig())
	store.On("InsertLog", mock.Anything, mock.Anything).Return(nil)

	res := svc.Sync(context.Background(), Options{Direction: "sideways"})

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "sideways")
}

func TestSync_CancelledContextStopsBeforeItems(t *testing.T) {
	svc, store, mirror := newTestService(t, testConfig())

	store.On("PendingDocuments", mock.Anything, mock.Anything).Return([]Document{{ID: uuid.New()}}, nil)
	store.On("InsertLog", mock.Anything, mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := svc.Sync(ctx, Options{})

	assert.False(t, res.Success)
	assert.Equal(t, 0, res.DocumentsProcessed)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "cancelled")
	mirror.AssertNotCalled(t, "MergeNode", mock.Anything, mock.Anything)
}

func TestSync_ConcurrentItems(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.Concurrency = 4
	svc, store, mirror := newTestService(t, cfg)

	docs := make([]Document, 20)
	for i := range docs {
		docs[i] = Document{ID: uuid.New()}
	}
	store.On("PendingDocuments", mock.Anything, mock.Anything).Return(docs, nil)
	emptyPush(store, KindDocument)
	store.On("InsertLog", mock.Anything, mock.Anything).Return(nil)
	mirror.On("MergeNode", mock.Anything, mock.Anything).Return(graph.MirrorResult{GraphID: "g", SyncVersion: 1}, nil)
	store.On("Stamp", mock.Anything, KindDocument, mock.Anything, "g", int64(1), mock.Anything).Return(nil)

	res := svc.Sync(context.Background(), Options{})

	assert.True(t, res.Success)
	assert.Equal(t, 20, res.DocumentsProcessed)
	assert.Len(t, store.logged(), 22)
}

func TestBatchSize(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())

	assert.Equal(t, 100, svc.batchSize(0))
	assert.Equal(t, 7, svc.batchSize(7))
	assert.Equal(t, 1000, svc.batchSize(5000))
}

func TestStats(t *testing.T) {
	svc, store, _ := newTestService(t, testConfig())
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	oldest := now.Add(-90 * time.Second)
	last := now.Add(-time.Hour)
	store.On("UnsyncedCount", mock.Anything, KindDocument).Return(int64(2), nil)
	store.On("UnsyncedCount", mock.Anything, KindChunk).Return(int64(5), nil)
	store.On("UnsyncedCount", mock.Anything, KindEntity).Return(int64(0), errors.New("timeout"))
	store.On("UnsyncedCount", mock.Anything, KindRelationship).Return(int64(1), nil)
	store.On("LastSuccessfulSync", mock.Anything).Return(&last, nil)
	store.On("OldestPendingChange", mock.Anything).Return(&oldest, nil)

	st := svc.Stats(context.Background())

	assert.Equal(t, int64(8), st.PendingTotal)
	assert.Equal(t, int64(5), st.UnsyncedByType[KindChunk])
	entities, hasEntity := st.UnsyncedByType[KindEntity]
	assert.True(t, hasEntity, "every mirror kind is reported")
	assert.Zero(t, entities)
	assert.Len(t, st.UnsyncedByType, len(MirrorKinds))
	assert.InDelta(t, 90, st.LagSeconds, 0.001)
	require.NotNil(t, st.LastSuccessfulSync)
	assert.Equal(t, last, *st.LastSuccessfulSync)
	assert.Equal(t, StateIdle, st.State)
}

func TestStats_NothingPending(t *testing.T) {
	svc, store, _ := newTestService(t, testConfig())
	store.On("UnsyncedCount", mock.Anything, mock.Anything).Return(int64(0), nil)
	store.On("LastSuccessfulSync", mock.Anything).Return(nil, nil)

	st := svc.Stats(context.Background())

	assert.Zero(t, st.PendingTotal)
	assert.Zero(t, st.LagSeconds)
	assert.Nil(t, st.LastSuccessfulSync)
	store.AssertNotCalled(t, "OldestPendingChange", mock.Anything)
}

func TestRecentLog_ClampsLimit(t *testing.T) {
	svc, store, _ := newTestService(t, testConfig())
	runID := uuid.New()
	store.On("RecentLog", mock.Anything, 50, (*uuid.UUID)(nil)).Return([]LogEntry{}, nil)
	store.On("RecentLog", mock.Anything, 500, &runID).Return([]LogEntry{{RunID: runID}}, nil)

	_, err := svc.RecentLog(context.Background(), 0, nil)
	require.NoError(t, err)
	rows, err := svc.RecentLog(context.Background(), 10000, &runID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWithoutReserved(t *testing.T) {
	in := map[string]any{"id": "x", "relational_id": "y", "mirrored_version": 3, "color": "red"}
	out := withoutReserved(in)

	assert.Equal(t, map[string]any{"color": "red"}, out)
	assert.Len(t, in, 4, "input must not be modified")
}
