package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/emergent-company/dualstore/domain/graph"
	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/pkg/logger"
	"github.com/emergent-company/dualstore/pkg/mathutil"
	"github.com/emergent-company/dualstore/pkg/storehealth"
	"github.com/emergent-company/dualstore/pkg/tracing"
)

// Store is the relational side of the coordinator.
type Store interface {
	PendingDocuments(ctx context.Context, limit int) ([]Document, error)
	PendingChunks(ctx context.Context, limit int) ([]Chunk, error)
	PendingEntities(ctx context.Context, limit int) ([]GraphEntity, error)
	PendingRelationships(ctx context.Context, limit int) ([]EntityRelationship, error)
	Stamp(ctx context.Context, kind EntityKind, id uuid.UUID, graphID string, version int64, observedUpdatedAt time.Time) error
	ImportEntity(ctx context.Context, req ImportRequest, policy ConflictPolicy) (ImportOutcome, error)
	InsertLog(ctx context.Context, entry *LogEntry) error
	RecentLog(ctx context.Context, limit int, runID *uuid.UUID) ([]LogEntry, error)
	UnsyncedCount(ctx context.Context, kind EntityKind) (int64, error)
	OldestPendingChange(ctx context.Context) (*time.Time, error)
	LastSuccessfulSync(ctx context.Context) (*time.Time, error)
}

// GraphMirror is the graph side of the coordinator.
type GraphMirror interface {
	MergeNode(ctx context.Context, n graph.MirrorNode) (graph.MirrorResult, error)
	MergeRelationship(ctx context.Context, e graph.MirrorEdge) (graph.MirrorResult, error)
	PendingNativeEntities(ctx context.Context, limit int) ([]graph.NativeEntity, error)
	MarkMirrored(ctx context.Context, graphID, relationalID string, version int64) error
}

// ErrSyncInProgress is reported when a run is requested while another is active.
var ErrSyncInProgress = errors.New("a sync run is already in progress")

// Service coordinates propagation between the stores. One run at a time.
type Service struct {
	store   Store
	graph   GraphMirror
	scaler  *storehealth.ConcurrencyScaler
	limiter *rate.Limiter
	cfg     config.SyncConfig
	policy  ConflictPolicy
	log     *slog.Logger
	now     func() time.Time

	running atomic.Bool
	state   atomic.Value
}

// NewService creates a new sync coordinator. scaler may be nil.
func NewService(store Store, g GraphMirror, scaler *storehealth.ConcurrencyScaler, cfg *config.Config, log *slog.Logger) *Service {
	policy, err := ParseConflictPolicy(cfg.Sync.ConflictPolicy)
	if err != nil {
		policy = PolicySourceWins
	}

	s := &Service{
		store:  store,
		graph:  g,
		scaler: scaler,
		cfg:    cfg.Sync,
		policy: policy,
		log:    log.With(logger.Scope("sync.svc")),
		now:    time.Now,
	}
	if cfg.Sync.ItemsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Sync.ItemsPerSecond), 1)
	}
	s.state.Store(StateIdle)
	return s
}

// State returns the state of the current or last run.
func (s *Service) State() State {
	st, _ := s.state.Load().(State)
	return st
}

// Running reports whether a run is in progress.
func (s *Service) Running() bool {
	return s.running.Load()
}

// run carries one sync run's identity and result. Item goroutines report
// through it under mu.
type run struct {
	id        uuid.UUID
	direction Direction
	dryRun    bool

	mu  stdsync.Mutex
	res *Result
}

// attempted counts an item whatever its outcome. Failures show up in
// Errors and in the item's log row, not in the per-kind counters.
func (r *run) attempted(kind EntityKind, conflict bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.res.count(kind)
	if conflict {
		r.res.Conflicts++
	}
}

func (r *run) fail(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.res.Errors = append(r.res.Errors, msg)
}

// workItem is one propagation. do performs the writes for one row.
type workItem struct {
	kind EntityKind
	id   string
	op   Operation
	do   func(ctx context.Context) (itemOutcome, error)
}

type itemOutcome struct {
	conflict   bool
	resolution *ConflictResolution
	details    map[string]any
}

// Sync runs one propagation pass. It never returns an error: per-item and
// orchestration failures are collected in Result.Errors, and a call made
// while another run is active returns a failed result straight away.
func (s *Service) Sync(ctx context.Context, opts Options) *Result {
	start := s.now()
	res := &Result{RunID: uuid.New(), DryRun: opts.DryRun, Errors: []string{}}

	dir := opts.Direction
	if dir == "" {
		dir = Direction(s.cfg.DefaultDirection)
	}
	res.Direction = dir

	if !s.running.CompareAndSwap(false, true) {
		res.State = StateFailed
		res.Errors = append(res.Errors, ErrSyncInProgress.Error())
		RunsTotal.WithLabelValues(string(dir), "rejected").Inc()
		s.log.Warn("sync rejected, another run is in progress", slog.String("direction", string(dir)))
		return res
	}
	defer s.running.Store(false)
	s.state.Store(StateRunning)

	ctx, span := tracing.Start(ctx, "sync.run",
		attribute.String("dualstore.sync.run_id", res.RunID.String()),
		attribute.String("dualstore.sync.direction", string(dir)),
		attribute.Bool("dualstore.sync.dry_run", opts.DryRun),
	)
	defer span.End()

	batch := s.batchSize(opts.BatchSize)
	r := &run{id: res.RunID, direction: dir, dryRun: opts.DryRun, res: res}

	s.log.Info("sync started",
		slog.String("run_id", r.id.String()),
		slog.String("direction", string(dir)),
		slog.Int("batch_size", batch),
		slog.Bool("dry_run", opts.DryRun))
	s.appendLog(ctx, &LogEntry{
		RunID:      r.id,
		Operation:  OpSyncStarted,
		EntityType: KindRun,
		Direction:  dir,
		Status:     StatusPending,
		Details:    map[string]any{"batchSize": batch, "dryRun": opts.DryRun},
	})

	if err := s.execute(ctx, r, batch); err != nil {
		r.fail(err.Error())
		tracing.Fail(span, err)
	}

	res.Success = len(res.Errors) == 0
	res.ExecutionTimeMs = s.now().Sub(start).Milliseconds()

	op, status, state := OpSyncCompleted, StatusSuccess, StateCompleted
	if !res.Success {
		op, status, state = OpSyncFailed, StatusFailed, StateFailed
	}
	res.State = state
	s.state.Store(state)

	processed := s.now()
	s.appendLog(context.WithoutCancel(ctx), &LogEntry{
		RunID:      r.id,
		Operation:  op,
		EntityType: KindRun,
		Direction:  dir,
		Status:     status,
		Details: map[string]any{
			"documentsProcessed":     res.DocumentsProcessed,
			"chunksProcessed":        res.ChunksProcessed,
			"entitiesProcessed":      res.EntitiesProcessed,
			"relationshipsProcessed": res.RelationshipsProcessed,
			"conflicts":              res.Conflicts,
			"errors":                 len(res.Errors),
			"dryRun":                 opts.DryRun,
		},
		ProcessedAt: &processed,
	})

	RunsTotal.WithLabelValues(string(dir), string(state)).Inc()
	RunDuration.WithLabelValues(string(dir)).Observe(s.now().Sub(start).Seconds())
	s.log.Info("sync finished",
		slog.String("run_id", r.id.String()),
		slog.String("state", string(state)),
		slog.Int("documents", res.DocumentsProcessed),
		slog.Int("chunks", res.ChunksProcessed),
		slog.Int("entities", res.EntitiesProcessed),
		slog.Int("relationships", res.RelationshipsProcessed),
		slog.Int("errors", len(res.Errors)),
		slog.Int64("duration_ms", res.ExecutionTimeMs))
	return res
}

// execute returns only orchestration errors; item errors go to the result.
func (s *Service) execute(ctx context.Context, r *run, batch int) error {
	if !r.direction.pushes() && !r.direction.pulls() {
		return fmt.Errorf("unknown sync direction %q", r.direction)
	}
	if r.direction.pushes() {
		if err := s.push(ctx, r, batch); err != nil {
			return err
		}
	}
	if r.direction.pulls() {
		if err := s.pull(ctx, r, batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) batchSize(requested int) int {
	if requested <= 0 {
		requested = s.cfg.BatchSize
	}
	return mathutil.ClampInt(requested, 1, max(s.cfg.MaxBatchSize, 1))
}

func (s *Service) concurrency() int {
	n := s.cfg.Concurrency
	if s.scaler != nil {
		n = s.scaler.GetConcurrency(n)
	}
	return max(n, 1)
}

// push mirrors pending relational rows into the graph. Kinds run in
// dependency order so chunks find their documents and relationships find
// their endpoints.
func (s *Service) push(ctx context.Context, r *run, batch int) error {
	for _, kind := range MirrorKinds {
		items, err := s.pendingItems(ctx, kind, batch)
		if err != nil {
			return fmt.Errorf("list pending %s rows: %w", kind, err)
		}
		if err := s.process(ctx, r, items); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) pendingItems(ctx context.Context, kind EntityKind, batch int) ([]workItem, error) {
	var items []workItem

	switch kind {
	case KindDocument:
		rows, err := s.store.PendingDocuments(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			node := graph.MirrorNode{
				Label:       graph.LabelDocument,
				ID:          row.ID.String(),
				Properties:  documentProps(row),
				SyncVersion: row.SyncVersion + 1,
			}
			items = append(items, s.nodeItem(KindDocument, OpMirrorDocument, node, row.ID, row.UpdatedAt))
		}

	case KindChunk:
		rows, err := s.store.PendingChunks(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			node := graph.MirrorNode{
				Label: graph.LabelChunk,
				ID:    row.ID.String(),
				Properties: map[string]any{
					"document_id": row.DocumentID.String(),
					"chunk_index": int64(row.ChunkIndex),
					"text":        row.Text,
				},
				SyncVersion: row.SyncVersion + 1,
				ParentID:    row.DocumentID.String(),
			}
			items = append(items, s.nodeItem(KindChunk, OpMirrorChunk, node, row.ID, row.UpdatedAt))
		}

	case KindEntity:
		rows, err := s.store.PendingEntities(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			node := graph.MirrorNode{
				Label:       graph.LabelEntity,
				ID:          row.ID.String(),
				Properties:  entityProps(row),
				SyncVersion: row.SyncVersion + 1,
			}
			items = append(items, s.nodeItem(KindEntity, OpMirrorEntity, node, row.ID, row.UpdatedAt))
		}

	case KindRelationship:
		rows, err := s.store.PendingRelationships(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			items = append(items, s.edgeItem(row))
		}
	}
	return items, nil
}

func (s *Service) nodeItem(kind EntityKind, op Operation, node graph.MirrorNode, id uuid.UUID, observed time.Time) workItem {
	return workItem{
		kind: kind,
		id:   node.ID,
		op:   op,
		do: func(ctx context.Context) (itemOutcome, error) {
			res, err := s.graph.MergeNode(ctx, node)
			if errors.Is(err, graph.ErrMissingEndpoint) {
				return itemOutcome{}, fmt.Errorf("parent document %s not mirrored yet: %w", node.ParentID, err)
			}
			if err != nil {
				return itemOutcome{}, err
			}
			if err := s.store.Stamp(ctx, kind, id, res.GraphID, res.SyncVersion, observed); err != nil {
				return itemOutcome{}, err
			}
			return itemOutcome{details: map[string]any{"graphId": res.GraphID, "syncVersion": res.SyncVersion}}, nil
		},
	}
}

func (s *Service) edgeItem(row EntityRelationship) workItem {
	edge := graph.MirrorEdge{
		ID:          row.ID.String(),
		Type:        row.Type,
		SourceID:    row.SourceEntityID.String(),
		TargetID:    row.TargetEntityID.String(),
		Properties:  withoutReserved(row.Properties),
		SyncVersion: row.SyncVersion + 1,
	}
	return workItem{
		kind: KindRelationship,
		id:   edge.ID,
		op:   OpMirrorRelationship,
		do: func(ctx context.Context) (itemOutcome, error) {
			res, err := s.graph.MergeRelationship(ctx, edge)
			if errors.Is(err, graph.ErrMissingEndpoint) {
				return itemOutcome{}, fmt.Errorf("endpoints %s -> %s not mirrored yet: %w", edge.SourceID, edge.TargetID, err)
			}
			if err != nil {
				return itemOutcome{}, err
			}
			if err := s.store.Stamp(ctx, KindRelationship, row.ID, res.GraphID, res.SyncVersion, row.UpdatedAt); err != nil {
				return itemOutcome{}, err
			}
			return itemOutcome{details: map[string]any{"graphId": res.GraphID, "syncVersion": res.SyncVersion}}, nil
		},
	}
}

// pull imports graph-native entities, and graph-side edits of mirrored
// ones, into kb.graph_entities.
func (s *Service) pull(ctx context.Context, r *run, batch int) error {
	natives, err := s.graph.PendingNativeEntities(ctx, batch)
	if err != nil {
		return fmt.Errorf("list graph-native entities: %w", err)
	}

	items := make([]workItem, 0, len(natives))
	for _, n := range natives {
		req := importRequest(n)
		items = append(items, workItem{
			kind: KindEntity,
			id:   n.Node.ID,
			op:   OpImportEntity,
			do: func(ctx context.Context) (itemOutcome, error) {
				out, err := s.store.ImportEntity(ctx, req, s.policy)
				if err != nil {
					return itemOutcome{}, err
				}
				if err := s.graph.MarkMirrored(ctx, req.GraphID, out.ID, out.SyncVersion); err != nil {
					return itemOutcome{}, err
				}
				return itemOutcome{
					conflict:   out.Conflict,
					resolution: out.Resolution,
					details: map[string]any{
						"relationalId": out.ID,
						"created":      out.Created,
						"applied":      out.Applied,
						"syncVersion":  out.SyncVersion,
					},
				}, nil
			},
		})
	}
	return s.process(ctx, r, items)
}

// process runs items with the configured concurrency. Cancellation is
// checked before each item starts; started items finish on their own
// timeout so none is left half written.
func (s *Service) process(ctx context.Context, r *run, items []workItem) error {
	if len(items) == 0 {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency())

	var stopErr error
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		if r.dryRun {
			r.attempted(it.kind, false)
			ItemsTotal.WithLabelValues(string(it.kind), "dry_run").Inc()
			continue
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				stopErr = err
				break
			}
		}
		g.Go(func() error {
			s.runItem(ctx, r, it)
			return nil
		})
	}
	_ = g.Wait()

	if stopErr != nil {
		return fmt.Errorf("sync cancelled: %w", stopErr)
	}
	return nil
}

func (s *Service) runItem(ctx context.Context, r *run, it workItem) {
	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.itemTimeout())
	defer cancel()

	out, err := it.do(itemCtx)

	processed := s.now()
	id := it.id
	entry := &LogEntry{
		RunID:       r.id,
		Operation:   it.op,
		EntityType:  it.kind,
		EntityID:    &id,
		Direction:   r.direction,
		Details:     out.details,
		ProcessedAt: &processed,
	}

	switch {
	case err != nil:
		msg := err.Error()
		entry.Status = StatusFailed
		entry.ErrorMessage = &msg
		r.attempted(it.kind, false)
		r.fail(fmt.Sprintf("%s %s: %v", it.kind, it.id, err))
		s.log.Warn("sync item failed",
			slog.String("run_id", r.id.String()),
			slog.String("kind", string(it.kind)),
			slog.String("id", it.id),
			logger.Error(err))
	case out.conflict:
		entry.Status = StatusConflict
		entry.ConflictResolution = out.resolution
		r.attempted(it.kind, true)
	default:
		entry.Status = StatusSuccess
		r.attempted(it.kind, false)
	}

	ItemsTotal.WithLabelValues(string(it.kind), string(entry.Status)).Inc()
	s.appendLog(itemCtx, entry)
}

func (s *Service) itemTimeout() time.Duration {
	if s.cfg.ItemTimeout > 0 {
		return s.cfg.ItemTimeout
	}
	return 30 * time.Second
}

// appendLog is best effort. A failed write is counted and logged but never
// becomes a sync error.
func (s *Service) appendLog(ctx context.Context, entry *LogEntry) {
	if err := s.store.InsertLog(ctx, entry); err != nil {
		LogWriteFailures.Inc()
		s.log.Warn("failed to append sync log",
			slog.String("operation", string(entry.Operation)),
			slog.String("status", string(entry.Status)),
			logger.Error(err))
	}
}

// Stats reports mirror lag. It never fails; a lookup that errors leaves its
// field at the zero value.
func (s *Service) Stats(ctx context.Context) Stats {
	st := Stats{
		UnsyncedByType: make(map[EntityKind]int64, len(MirrorKinds)),
		State:          s.State(),
	}

	for _, kind := range MirrorKinds {
		n, err := s.store.UnsyncedCount(ctx, kind)
		if err != nil {
			s.log.Warn("failed to count unsynced rows", slog.String("kind", string(kind)), logger.Error(err))
			st.UnsyncedByType[kind] = 0
			continue
		}
		st.UnsyncedByType[kind] = n
		st.PendingTotal += n
		PendingItems.WithLabelValues(string(kind)).Set(float64(n))
	}

	last, err := s.store.LastSuccessfulSync(ctx)
	if err != nil {
		s.log.Warn("failed to read last successful sync", logger.Error(err))
	}
	st.LastSuccessfulSync = last

	if st.PendingTotal > 0 {
		oldest, err := s.store.OldestPendingChange(ctx)
		if err != nil {
			s.log.Warn("failed to read oldest pending change", logger.Error(err))
		} else if oldest != nil {
			st.LagSeconds = max(s.now().Sub(*oldest).Seconds(), 0)
		}
	}
	return st
}

// RecentLog lists sync log rows, newest first.
func (s *Service) RecentLog(ctx context.Context, limit int, runID *uuid.UUID) ([]LogEntry, error) {
	return s.store.RecentLog(ctx, mathutil.ClampLimit(limit, 50, 500), runID)
}

// Reserved graph properties the mirror writes itself.
var reservedProps = []string{"id", "relational_id", "sync_version", "mirrored_version", "last_synced_at"}

func withoutReserved(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	maps.Copy(out, props)
	for _, k := range reservedProps {
		delete(out, k)
	}
	return out
}

func documentProps(d Document) map[string]any {
	props := map[string]any{}
	setIf(props, "filename", d.Filename)
	setIf(props, "source_url", d.SourceURL)
	setIf(props, "content_hash", d.ContentHash)
	setIf(props, "mime_type", d.MimeType)
	return props
}

func entityProps(e GraphEntity) map[string]any {
	props := withoutReserved(e.Properties)
	props["name"] = e.Name
	props["type"] = e.Type
	setIf(props, "description", e.Description)
	if e.CentralityScore != nil {
		props["centrality_score"] = *e.CentralityScore
	}
	return props
}

func setIf(props map[string]any, key string, v *string) {
	if v != nil {
		props[key] = *v
	}
}

// importRequest maps a graph entity's properties onto relational columns.
// Properties without a column stay in the jsonb properties map.
func importRequest(n graph.NativeEntity) ImportRequest {
	props := withoutReserved(n.Node.Properties)

	req := ImportRequest{
		GraphID:      n.Node.ID,
		RelationalID: n.RelationalID,
		SyncVersion:  n.SyncVersion,
		Name:         n.Node.ID,
		Type:         "Entity",
	}
	if name, ok := props["name"].(string); ok && name != "" {
		req.Name = name
	}
	if typ, ok := props["type"].(string); ok && typ != "" {
		req.Type = typ
	} else {
		for _, l := range n.Node.Labels {
			if l != graph.LabelEntity {
				req.Type = l
				break
			}
		}
	}
	if desc, ok := props["description"].(string); ok {
		req.Description = &desc
	}
	for _, k := range []string{"name", "type", "description", "centrality_score"} {
		delete(props, k)
	}
	req.Properties = props
	return req
}
