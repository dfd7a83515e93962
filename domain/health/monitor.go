package health

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"

	"github.com/emergent-company/dualstore/domain/graph"
	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/internal/database"
	"github.com/emergent-company/dualstore/pkg/storehealth"
)

// Monitored store names. Routing and the sync scaler look stores up by these.
const (
	StoreVector = "vector"
	StoreGraph  = "graph"
)

// NewMonitor probes the relational/vector pool and the graph driver on the
// configured interval. The monitor runs for the lifetime of the app.
func NewMonitor(lc fx.Lifecycle, pool *pgxpool.Pool, g *graph.Service, cfg *config.Config, log *slog.Logger) storehealth.Monitor {
	m := storehealth.NewMonitor(monitorConfig(cfg.Health), map[string]storehealth.CheckFunc{
		StoreVector: database.Ping(pool),
		StoreGraph:  g.Probe,
	}, log)

	registerStoreGauges(m, StoreVector, StoreGraph)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return m.Start()
		},
		OnStop: func(ctx context.Context) error {
			return m.Stop()
		},
	})
	return m
}

func monitorConfig(h config.HealthConfig) *storehealth.Config {
	cfg := storehealth.DefaultConfig()
	if h.Interval > 0 {
		cfg.Interval = h.Interval
	}
	if h.CheckTimeout > 0 {
		cfg.CheckTimeout = h.CheckTimeout
	}
	if h.StalenessThreshold > 0 {
		cfg.StalenessThreshold = h.StalenessThreshold
	}
	if h.FailureThreshold > 0 {
		cfg.FailureThreshold = h.FailureThreshold
	}
	if h.LatencyWarning > 0 {
		cfg.LatencyWarning = h.LatencyWarning
	}
	return cfg
}

// registerStoreGauges exports the latest snapshot on scrape.
func registerStoreGauges(m storehealth.Monitor, stores ...string) {
	for _, name := range stores {
		labels := prometheus.Labels{"store": name}
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "dualstore_store_healthy",
			Help:        "1 when the store answered its last health probe",
			ConstLabels: labels,
		}, func() float64 {
			if m.Snapshot().Store(name).Healthy {
				return 1
			}
			return 0
		})
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "dualstore_store_latency_ms",
			Help:        "Latency of the last health probe, -1 when it failed",
			ConstLabels: labels,
		}, func() float64 {
			return m.Snapshot().Store(name).LatencyMs
		})
	}
}
