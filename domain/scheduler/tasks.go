package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	syncsvc "github.com/emergent-company/dualstore/domain/sync"
	"github.com/emergent-company/dualstore/pkg/logger"
)

// SyncRunner is the part of the sync coordinator the scheduled tasks use.
type SyncRunner interface {
	Sync(ctx context.Context, opts syncsvc.Options) *syncsvc.Result
	Stats(ctx context.Context) syncsvc.Stats
	Running() bool
}

// SyncTask runs one sync pass in the configured default direction
type SyncTask struct {
	runner SyncRunner
	log    *slog.Logger
}

// NewSyncTask creates a new scheduled sync task
func NewSyncTask(runner SyncRunner, log *slog.Logger) *SyncTask {
	return &SyncTask{
		runner: runner,
		log:    log.With(logger.Scope("scheduler.sync")),
	}
}

// Run executes one sync pass. A run triggered by hand that is still going
// makes this tick a no-op.
func (t *SyncTask) Run(ctx context.Context) error {
	if t.runner.Running() {
		t.log.Info("sync already running, skipping scheduled run")
		return nil
	}

	res := t.runner.Sync(ctx, syncsvc.Options{})
	if !res.Success {
		return fmt.Errorf("sync run %s failed with %d errors: %s",
			res.RunID, len(res.Errors), strings.Join(firstN(res.Errors, 3), "; "))
	}

	t.log.Info("scheduled sync completed",
		slog.String("run_id", res.RunID.String()),
		slog.Int("documents", res.DocumentsProcessed),
		slog.Int("chunks", res.ChunksProcessed),
		slog.Int("entities", res.EntitiesProcessed),
		slog.Int("relationships", res.RelationshipsProcessed),
		slog.Int("conflicts", res.Conflicts))
	return nil
}

// StatsRefreshTask keeps the pending-items gauges current between runs
type StatsRefreshTask struct {
	runner SyncRunner
	log    *slog.Logger
}

// NewStatsRefreshTask creates a new stats refresh task
func NewStatsRefreshTask(runner SyncRunner, log *slog.Logger) *StatsRefreshTask {
	return &StatsRefreshTask{
		runner: runner,
		log:    log.With(logger.Scope("scheduler.sync_stats")),
	}
}

// Run refreshes sync stats
func (t *StatsRefreshTask) Run(ctx context.Context) error {
	st := t.runner.Stats(ctx)
	if st.PendingTotal > 0 {
		t.log.Debug("mirror lag",
			slog.Int64("pending", st.PendingTotal),
			slog.Float64("lag_seconds", st.LagSeconds))
	}
	return nil
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
