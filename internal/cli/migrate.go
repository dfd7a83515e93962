package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emergent-company/dualstore/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or inspect the kb schema migrations",
	Long: `Manage the relational schema (documents, chunks, graph entities,
relationships, sync log) with the embedded goose migrations.

Examples:
  dualstorectl migrate up
  dualstorectl migrate status`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrator) error {
		return m.Up(cmd.Context())
	}),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last migration",
	RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrator) error {
		return m.Down(cmd.Context())
	}),
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which migrations are applied",
	RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrator) error {
		if err := m.Status(cmd.Context()); err != nil {
			return err
		}
		v, err := m.Version(cmd.Context())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "current version: %d\n", v)
		return err
	}),
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withMigrator(fn func(*cobra.Command, *migrate.Migrator) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		zl, err := newZapLogger()
		if err != nil {
			return err
		}
		defer func() { _ = zl.Sync() }()

		s := newStores(cfg, newLogger())
		defer s.Close(cmd.Context())

		_, db, err := s.postgres(cmd.Context())
		if err != nil {
			return err
		}
		return fn(cmd, migrate.NewMigrator(db, zl))
	}
}

func newZapLogger() (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.OutputPaths = []string{"stderr"}
	if !debug {
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zc.Build()
}
