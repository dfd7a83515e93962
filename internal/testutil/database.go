// Package testutil provisions throwaway PostgreSQL databases for
// integration tests against the real kb schema.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/internal/database"
	"github.com/emergent-company/dualstore/internal/migrate"
)

// SkipEnv opts out of database tests even when PostgreSQL is reachable.
const SkipEnv = "DUALSTORE_SKIP_DB_TESTS"

const templateDBName = "dualstore_test_template"

var (
	templateOnce sync.Once
	templateErr  error
)

// TestDB is one migrated database cloned from the template.
type TestDB struct {
	Config *config.Config
	Pool   *pgxpool.Pool
	DB     *bun.DB
	Name   string
}

// NewTestDB clones the template database for t and drops the clone when t
// finishes. The test is skipped when PostgreSQL is not reachable with the
// POSTGRES_* settings.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if os.Getenv(SkipEnv) != "" {
		t.Skipf("%s is set", SkipEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tdb, err := setup(ctx, t.Name())
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { tdb.close() })
	return tdb
}

func setup(ctx context.Context, testName string) (*TestDB, error) {
	base, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	templateOnce.Do(func() {
		templateErr = ensureTemplate(ctx, base)
	})
	if templateErr != nil {
		return nil, fmt.Errorf("template database: %w", templateErr)
	}

	name := fmt.Sprintf("dualstore_test_%s_%d", sanitize(testName), time.Now().UnixNano())
	if err := admin(ctx, base, func(pool *pgxpool.Pool) error {
		_, err := pool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s TEMPLATE %s", name, templateDBName))
		return err
	}); err != nil {
		return nil, fmt.Errorf("clone template: %w", err)
	}

	cfg := *base
	cfg.Database.Database = name
	cfg.Database.MaxOpenConns = 5
	cfg.Database.MaxIdleConns = 0

	pool, err := database.Open(ctx, cfg.Database)
	if err != nil {
		drop(context.Background(), base, name)
		return nil, err
	}

	return &TestDB{
		Config: &cfg,
		Pool:   pool,
		DB:     database.WrapBun(pool, cfg.Database, slog.Default()),
		Name:   name,
	}, nil
}

func (t *TestDB) close() {
	_ = t.DB.Close()
	t.Pool.Close()
	base := *t.Config
	drop(context.Background(), &base, t.Name)
}

// ensureTemplate builds the template once per test binary by running the
// goose migrations, so every clone starts from the real schema.
func ensureTemplate(ctx context.Context, base *config.Config) error {
	var exists bool
	err := admin(ctx, base, func(pool *pgxpool.Pool) error {
		if err := pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", templateDBName).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}
		_, err := pool.Exec(ctx, "CREATE DATABASE "+templateDBName)
		return err
	})
	if err != nil || exists {
		return err
	}

	cfg := *base
	cfg.Database.Database = templateDBName
	pool, err := database.Open(ctx, cfg.Database)
	if err != nil {
		drop(ctx, base, templateDBName)
		return err
	}
	db := database.WrapBun(pool, cfg.Database, slog.Default())

	err = migrate.NewMigrator(db, zap.NewNop()).Up(ctx)
	_ = db.Close()
	pool.Close()
	if err != nil {
		drop(ctx, base, templateDBName)
		return err
	}
	return nil
}

// admin runs fn on a short-lived pool against the maintenance database.
func admin(ctx context.Context, base *config.Config, fn func(*pgxpool.Pool) error) error {
	cfg := base.Database
	cfg.Database = "postgres"
	cfg.MaxOpenConns, cfg.MaxIdleConns = 2, 0

	pool, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(pool)
}

func drop(ctx context.Context, base *config.Config, name string) {
	_ = admin(ctx, base, func(pool *pgxpool.Pool) error {
		_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity
			WHERE datname = $1 AND pid <> pg_backend_pid()`, name)
		_, err := pool.Exec(ctx, "DROP DATABASE IF EXISTS "+name)
		return err
	})
}

// TruncateTables empties every kb table, for tests that share one clone.
func TruncateTables(ctx context.Context, db bun.IDB) error {
	var tables []string
	err := db.NewRaw(`SELECT 'kb.' || tablename FROM pg_tables WHERE schemaname = 'kb'`).Scan(ctx, &tables)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	if len(tables) == 0 {
		return nil
	}
	if _, err := db.NewRaw("TRUNCATE TABLE " + strings.Join(tables, ", ") + " CASCADE").Exec(ctx); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if len(s) > 30 {
		s = s[:30]
	}
	return s
}
