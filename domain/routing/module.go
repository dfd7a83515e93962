package routing

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/emergent-company/dualstore/domain/graph"
	"github.com/emergent-company/dualstore/domain/search"
	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/pkg/logger"
	"github.com/emergent-company/dualstore/pkg/storehealth"
)

// Module provides routing dependencies via fx
var Module = fx.Module("routing",
	fx.Provide(
		NewRegistryFromConfig,
		NewDecisionCache,
		func(g *graph.Service, v *search.Repository, m storehealth.Monitor, reg *Registry, cache DecisionCache, cfg *config.Config, log *slog.Logger) *Service {
			return NewService(g, v, m, reg, cache, cfg, log)
		},
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)

// NewRegistryFromConfig loads ROUTING_REGISTRY_FILE when set and the
// built-in registry otherwise.
func NewRegistryFromConfig(cfg *config.Config, log *slog.Logger) (*Registry, error) {
	if cfg.Routing.RegistryFile == "" {
		return DefaultRegistry(), nil
	}
	reg, err := LoadRegistry(cfg.Routing.RegistryFile)
	if err != nil {
		return nil, err
	}
	log.Info("capability registry loaded",
		logger.Scope("routing"),
		slog.String("file", cfg.Routing.RegistryFile),
		slog.Any("vector", reg.Capabilities(StoreVector)),
		slog.Any("graph", reg.Capabilities(StoreGraph)))
	return reg, nil
}

// NewDecisionCache connects to redis when REDIS_URL is set. An unreachable
// redis disables caching instead of failing startup.
func NewDecisionCache(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) DecisionCache {
	if !cfg.Redis.Enabled() {
		return NoopCache()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := DialRedis(ctx, cfg.Redis.URL)
	if err != nil {
		log.Warn("decision cache unavailable, routing without it",
			logger.Scope("routing"),
			logger.Error(err))
		return NoopCache()
	}

	cache := NewRedisCache(client, cfg.Routing.CacheTTL, log)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return cache.Close()
		},
	})
	return cache
}
