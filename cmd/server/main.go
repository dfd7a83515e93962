// Package main provides the entry point for the dual-store query router
//
// @title Dual-Store Query Router
// @version 0.1.0
// @description Routes retrieval queries between pgvector and the graph store and keeps both stores in sync
// @contact.name Emergent Team
// @contact.url https://emergent-company.ai
// @license.name Proprietary
// @host localhost:3002
// @BasePath /
// @schemes http https
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/emergent-company/dualstore/domain/graph"
	"github.com/emergent-company/dualstore/domain/health"
	"github.com/emergent-company/dualstore/domain/routing"
	"github.com/emergent-company/dualstore/domain/scheduler"
	"github.com/emergent-company/dualstore/domain/search"
	syncsvc "github.com/emergent-company/dualstore/domain/sync"
	"github.com/emergent-company/dualstore/domain/tracing"
	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/internal/database"
	"github.com/emergent-company/dualstore/internal/graphdb"
	"github.com/emergent-company/dualstore/internal/server"
	"github.com/emergent-company/dualstore/pkg/logger"
)

func main() {
	// Load() won't overwrite existing vars, Overload() will
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		graphdb.Module,
		server.Module,
		tracing.Module,

		// Domain modules
		health.Module,
		graph.Module,
		search.Module,
		routing.Module,
		syncsvc.Module,

		// Scheduler module (cron-driven sync runs)
		scheduler.Module,
	).Run()
}
