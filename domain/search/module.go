package search

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"github.com/emergent-company/dualstore/internal/config"
)

// Module provides search dependencies via fx
var Module = fx.Module("search",
	fx.Provide(
		func(pool *pgxpool.Pool, cfg *config.Config, log *slog.Logger) *Repository {
			return NewRepository(pool, cfg, log)
		},
	),
)
