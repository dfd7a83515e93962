package graph

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/emergent-company/dualstore/pkg/logger"
	"github.com/emergent-company/dualstore/pkg/tracing"
)

const healthQuery = `CALL { MATCH (n) RETURN count(n) AS nodes }
CALL { MATCH ()-[r]->() RETURN count(r) AS relationships }
RETURN nodes, relationships`

// HealthCheck counts nodes and relationships. Failures are reported in the
// returned status, never as an error.
func (s *Service) HealthCheck(ctx context.Context) HealthStatus {
	ctx, span := tracing.Start(ctx, "graph.health_check")
	defer span.End()

	start := time.Now()
	records, err := s.run(ctx, "health_check", healthQuery, nil)
	if err != nil {
		tracing.Fail(span, err)
		s.log.Warn("graph health check failed", logger.Error(err))
		return HealthStatus{Healthy: false, LatencyMs: -1, Error: err.Error()}
	}

	status := HealthStatus{
		Healthy:   true,
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if len(records) > 0 {
		status.NodeCount = records[0].Int("nodes")
		status.RelationshipCount = records[0].Int("relationships")
	}
	return status
}

// Probe adapts HealthCheck to the store health monitor.
func (s *Service) Probe(ctx context.Context) error {
	status := s.HealthCheck(ctx)
	if !status.Healthy {
		return errors.New(status.Error)
	}
	return nil
}

type schemaStatement struct {
	name  string
	query string
}

var schemaStatements = []schemaStatement{
	{"entity_id_unique", "CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE"},
	{"entity_type_idx", "CREATE INDEX entity_type_idx IF NOT EXISTS FOR (e:Entity) ON (e.type)"},
	{"entity_centrality_idx", "CREATE INDEX entity_centrality_idx IF NOT EXISTS FOR (e:Entity) ON (e.centrality_score)"},
	{"document_id_unique", "CREATE CONSTRAINT document_id_unique IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE"},
	{"document_content_hash_idx", "CREATE INDEX document_content_hash_idx IF NOT EXISTS FOR (d:Document) ON (d.content_hash)"},
	{"chunk_id_unique", "CREATE CONSTRAINT chunk_id_unique IF NOT EXISTS FOR (c:Chunk) REQUIRE c.id IS UNIQUE"},
	{"chunk_document_idx", "CREATE INDEX chunk_document_idx IF NOT EXISTS FOR (c:Chunk) ON (c.document_id)"},
}

// EnsureSchema creates the graph constraints and indexes. Each statement runs
// on its own; a failure is logged and the remaining statements still run.
func (s *Service) EnsureSchema(ctx context.Context) SchemaReport {
	ctx, span := tracing.Start(ctx, "graph.ensure_schema")
	defer span.End()

	report := SchemaReport{Applied: []string{}, Failed: []SchemaFailure{}}
	for _, stmt := range schemaStatements {
		if _, err := s.runWrite(ctx, "ensure_schema", stmt.query, nil); err != nil {
			s.log.Warn("schema statement failed",
				slog.String("statement", stmt.name),
				logger.Error(err))
			report.Failed = append(report.Failed, SchemaFailure{Name: stmt.name, Error: err.Error()})
			continue
		}
		report.Applied = append(report.Applied, stmt.name)
	}

	s.log.Info("graph schema ensured",
		slog.Int("applied", len(report.Applied)),
		slog.Int("failed", len(report.Failed)))
	return report
}
