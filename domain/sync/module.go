package sync

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/dualstore/domain/graph"
	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/pkg/storehealth"
)

// Module provides the sync coordinator via fx
var Module = fx.Module("sync",
	fx.Provide(
		NewRepository,
		NewScaler,
		func(repo *Repository, g *graph.Service, scaler *storehealth.ConcurrencyScaler, cfg *config.Config, log *slog.Logger) *Service {
			return NewService(repo, g, scaler, cfg, log)
		},
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)

// NewScaler lowers sync concurrency while the graph store is degraded.
func NewScaler(m storehealth.Monitor, cfg *config.Config) *storehealth.ConcurrencyScaler {
	return storehealth.NewConcurrencyScaler(m, "graph", "sync", cfg.Sync.AdaptiveScaling, 1, max(cfg.Sync.Concurrency, 1))
}
