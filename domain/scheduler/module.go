package scheduler

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	syncsvc "github.com/emergent-company/dualstore/domain/sync"
	"github.com/emergent-company/dualstore/pkg/logger"
)

// Module provides scheduled task functionality
var Module = fx.Module("scheduler",
	fx.Provide(
		NewConfig,
		NewScheduler,
	),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks
type TaskParams struct {
	fx.In
	Scheduler *Scheduler
	Sync      *syncsvc.Service
	Log       *slog.Logger
	Cfg       *Config
}

// RegisterTasks registers all scheduled tasks. An invalid sync schedule
// fails startup.
func RegisterTasks(p TaskParams) error {
	if !p.Cfg.Enabled() {
		p.Log.Info("no tasks configured, scheduler idle", logger.Scope("scheduler"))
		return nil
	}

	if p.Cfg.SyncSchedule != "" {
		task := NewSyncTask(p.Sync, p.Log)
		if err := p.Scheduler.AddCronTask("sync", p.Cfg.SyncSchedule, task.Run); err != nil {
			return err
		}
	}

	if p.Cfg.StatsRefreshInterval > 0 {
		task := NewStatsRefreshTask(p.Sync, p.Log)
		if err := p.Scheduler.AddIntervalTask("sync_stats", p.Cfg.StatsRefreshInterval, task.Run); err != nil {
			p.Log.Error("sync stats task not registered", logger.Scope("scheduler"), logger.Error(err))
		}
	}

	p.Log.Info("registered scheduled tasks",
		logger.Scope("scheduler"),
		slog.Any("tasks", p.Scheduler.ListTasks()))

	return nil
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *Config) {
	if !cfg.Enabled() {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
