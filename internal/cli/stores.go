package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/uptrace/bun"

	"github.com/emergent-company/dualstore/domain/graph"
	"github.com/emergent-company/dualstore/domain/health"
	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/internal/database"
	"github.com/emergent-company/dualstore/internal/graphdb"
	"github.com/emergent-company/dualstore/pkg/storehealth"
)

// stores opens connections on first use and closes whatever was opened.
type stores struct {
	cfg *config.Config
	log *slog.Logger

	pool   *pgxpool.Pool
	db     *bun.DB
	driver neo4j.DriverWithContext
}

func newStores(cfg *config.Config, log *slog.Logger) *stores {
	return &stores{cfg: cfg, log: log}
}

func (s *stores) postgres(ctx context.Context) (*pgxpool.Pool, *bun.DB, error) {
	if s.pool == nil {
		pool, err := database.Open(ctx, s.cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		s.pool = pool
		s.db = database.WrapBun(pool, s.cfg.Database, s.log)
	}
	return s.pool, s.db, nil
}

func (s *stores) graph() (*graph.Service, error) {
	if s.driver == nil {
		driver, err := graphdb.Open(s.cfg.Graph)
		if err != nil {
			return nil, err
		}
		s.driver = driver
	}
	return graph.NewService(graph.NewNeo4jRunner(s.driver, s.cfg), s.cfg, s.log), nil
}

// probe collects one health snapshot of both stores.
func (s *stores) probe(ctx context.Context) (*storehealth.Snapshot, error) {
	pool, _, err := s.postgres(ctx)
	if err != nil {
		return nil, fmt.Errorf("relational store: %w", err)
	}
	g, err := s.graph()
	if err != nil {
		return nil, fmt.Errorf("graph store: %w", err)
	}

	m := storehealth.NewMonitor(storehealth.DefaultConfig(), map[string]storehealth.CheckFunc{
		health.StoreVector: database.Ping(pool),
		health.StoreGraph:  g.Probe,
	}, s.log)
	if err := m.Start(); err != nil {
		return nil, err
	}
	defer func() { _ = m.Stop() }()
	return m.Snapshot(), nil
}

func (s *stores) Close(ctx context.Context) {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.driver != nil {
		_ = s.driver.Close(ctx)
	}
}

// staticHealth serves a snapshot taken once.
type staticHealth struct {
	snap *storehealth.Snapshot
}

func (h staticHealth) Snapshot() *storehealth.Snapshot { return h.snap }
