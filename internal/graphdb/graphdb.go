// Package graphdb owns the Bolt driver used to reach the graph store.
package graphdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/fx"

	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/pkg/logger"
)

var Module = fx.Module("graphdb",
	fx.Provide(NewDriver),
)

// NewDriver opens the Bolt driver and closes it on app stop.
//
// Connectivity is verified once but a failure is only logged: the graph store
// may come up after the service, and routing degrades to the vector store
// until the health monitor sees it.
func NewDriver(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (neo4j.DriverWithContext, error) {
	log = log.With(logger.Scope("graphdb"))

	driver, err := Open(cfg.Graph)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Graph.ConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Warn("graph store not reachable at startup",
			slog.String("uri", cfg.Graph.URI),
			logger.Error(err))
	} else {
		log.Info("graph driver connected",
			slog.String("uri", cfg.Graph.URI),
			slog.Int("max_pool_size", cfg.Graph.MaxPoolSize))
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing graph driver")
			return driver.Close(ctx)
		},
	})

	return driver, nil
}

// Open builds a driver from cfg without touching the network.
func Open(cfg config.GraphConfig) (neo4j.DriverWithContext, error) {
	auth := neo4j.NoAuth()
	if cfg.User != "" {
		auth = neo4j.BasicAuth(cfg.User, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.ConnectionAcquisitionTimeout = cfg.AcquisitionTimeout
		c.SocketConnectTimeout = cfg.ConnectTimeout
		c.MaxConnectionLifetime = cfg.MaxConnectionLifetime
		c.SocketKeepalive = true
	})
	if err != nil {
		return nil, fmt.Errorf("create graph driver: %w", err)
	}
	return driver, nil
}

// VerifyTimeout is the default budget for ad-hoc connectivity checks from the CLI.
const VerifyTimeout = 10 * time.Second
