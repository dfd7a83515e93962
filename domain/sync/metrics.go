package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dualstore_sync_runs_total",
		Help: "Sync runs by direction and outcome (completed, failed, rejected)",
	}, []string{"direction", "outcome"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dualstore_sync_run_duration_seconds",
		Help:    "Sync run duration by direction",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"direction"})

	ItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dualstore_sync_items_total",
		Help: "Propagated items by entity kind and status",
	}, []string{"kind", "status"})

	PendingItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dualstore_sync_pending_items",
		Help: "Relational rows whose graph mirror is missing or stale",
	}, []string{"kind"})

	LogWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dualstore_sync_log_write_failures_total",
		Help: "Sync log rows that could not be written",
	})
)
