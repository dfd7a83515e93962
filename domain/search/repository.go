package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"

	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/pkg/apperror"
	"github.com/emergent-company/dualstore/pkg/logger"
	"github.com/emergent-company/dualstore/pkg/pgutils"
	"github.com/emergent-company/dualstore/pkg/tracing"
)

// Pool is the subset of *pgxpool.Pool the repository needs.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository runs similarity search and entity lookups against PostgreSQL + pgvector.
type Repository struct {
	pool     Pool
	timeout  time.Duration
	maxLimit int
	log      *slog.Logger
}

// NewRepository creates a new search repository
func NewRepository(pool Pool, cfg *config.Config, log *slog.Logger) *Repository {
	return &Repository{
		pool:     pool,
		timeout:  cfg.Routing.QueryTimeout,
		maxLimit: cfg.Routing.MaxResultLimit,
		log:      log.With(logger.Scope("search.repo")),
	}
}

// Validate checks limit and threshold bounds and a non-empty embedding.
func Validate(p SimilarityParams) error {
	if len(p.Embedding) == 0 {
		return apperror.NewValidation("embedding must not be empty")
	}
	if p.Limit <= 0 {
		return apperror.NewValidation("limit must be greater than 0")
	}
	if p.Threshold < 0 || p.Threshold > 1 {
		return apperror.NewValidation("threshold must be between 0 and 1")
	}
	return nil
}

const similarityQuery = `SELECT c.id, c.document_id, c.chunk_index, c.text,
	1 - (c.embedding <=> $1::vector) AS similarity
FROM kb.chunks c
WHERE c.embedding IS NOT NULL
	AND 1 - (c.embedding <=> $1::vector) >= $2
ORDER BY c.embedding <=> $1::vector
LIMIT $3`

// SimilaritySearch returns chunks whose cosine similarity to the embedding is
// at least Threshold, nearest first.
func (r *Repository) SimilaritySearch(ctx context.Context, p SimilarityParams) (*Result, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	limit := min(p.Limit, r.maxLimit)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx, span := tracing.Start(ctx, "search.similarity",
		attribute.Int("dualstore.limit", limit),
		attribute.Float64("dualstore.threshold", p.Threshold),
	)
	defer span.End()

	start := time.Now()
	rows, err := r.pool.Query(ctx, similarityQuery, pgutils.FormatVector(p.Embedding), p.Threshold, limit)
	if err != nil {
		tracing.Fail(span, err)
		return nil, classify("similarity search", err)
	}
	defer rows.Close()

	hits := []ChunkHit{}
	for rows.Next() {
		var h ChunkHit
		if err := rows.Scan(&h.ID, &h.DocumentID, &h.ChunkIndex, &h.Text, &h.Similarity); err != nil {
			return nil, apperror.ErrDatabase.WithInternal(fmt.Errorf("scan chunk: %w", err))
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		tracing.Fail(span, err)
		return nil, classify("similarity search", err)
	}

	return &Result{
		Operation:       "similarity_search",
		Chunks:          hits,
		ResultCount:     len(hits),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Threshold:       p.Threshold,
	}, nil
}

const entityLookupQuery = `SELECT id, name, type, COALESCE(description, ''), properties,
	graph_node_id, sync_version, last_synced_at
FROM kb.graph_entities
WHERE id = $1`

// EntityLookup returns one entity with its graph cross reference.
func (r *Repository) EntityLookup(ctx context.Context, id string) (*Entity, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.NewValidation("entity id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx, span := tracing.Start(ctx, "search.entity_lookup", attribute.String("dualstore.entity.id", id))
	defer span.End()

	var (
		e     Entity
		props []byte
	)
	err := r.pool.QueryRow(ctx, entityLookupQuery, id).Scan(
		&e.ID, &e.Name, &e.Type, &e.Description, &props, &e.GraphNodeID, &e.SyncVersion, &e.LastSyncedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NewNotFound("entity", id)
	}
	if err != nil {
		tracing.Fail(span, err)
		return nil, classify("entity lookup", err)
	}
	if len(props) > 0 {
		if err := json.Unmarshal(props, &e.Properties); err != nil {
			r.log.Warn("entity properties are not valid JSON",
				slog.String("entity_id", id),
				logger.Error(err))
		}
	}
	return &e, nil
}

const entitySimilarityQuery = `SELECT id, name, type, COALESCE(description, ''), graph_node_id, sync_version,
	1 - (embedding <=> $1::vector) AS similarity
FROM kb.graph_entities
WHERE embedding IS NOT NULL
	AND 1 - (embedding <=> $1::vector) >= $2
ORDER BY embedding <=> $1::vector
LIMIT $3`

// EntitySimilarity ranks entities by cosine similarity of their embeddings.
// The hybrid and bridge strategies use it to find graph entry points.
func (r *Repository) EntitySimilarity(ctx context.Context, p SimilarityParams) (*Result, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	limit := min(p.Limit, r.maxLimit)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx, span := tracing.Start(ctx, "search.entity_similarity", attribute.Int("dualstore.limit", limit))
	defer span.End()

	start := time.Now()
	rows, err := r.pool.Query(ctx, entitySimilarityQuery, pgutils.FormatVector(p.Embedding), p.Threshold, limit)
	if err != nil {
		tracing.Fail(span, err)
		return nil, classify("entity similarity", err)
	}
	defer rows.Close()

	hits := []EntityHit{}
	for rows.Next() {
		var h EntityHit
		if err := rows.Scan(&h.ID, &h.Name, &h.Type, &h.Description, &h.GraphNodeID, &h.SyncVersion, &h.Similarity); err != nil {
			return nil, apperror.ErrDatabase.WithInternal(fmt.Errorf("scan entity: %w", err))
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		tracing.Fail(span, err)
		return nil, classify("entity similarity", err)
	}

	return &Result{
		Operation:       "entity_similarity",
		Entities:        hits,
		ResultCount:     len(hits),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Threshold:       p.Threshold,
	}, nil
}

// classify maps driver failures onto the error taxonomy.
func classify(op string, err error) error {
	if isConnectionError(err) {
		return apperror.ErrConnection.WithMessage(op + ": vector store unavailable").WithInternal(err)
	}
	return apperror.ErrDatabase.WithMessage(op + " failed").WithInternal(err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if pgconn.Timeout(err) || pgutils.IsQueryCanceled(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
