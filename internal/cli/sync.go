package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	syncsvc "github.com/emergent-company/dualstore/domain/sync"
	"github.com/emergent-company/dualstore/internal/config"
)

var syncFlags struct {
	direction string
	batchSize int
	dryRun    bool
}

var logFlags struct {
	limit int
	runID string
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization pass between the stores",
	Long: `Propagate pending changes between the relational store and the graph.

Directions: vector_to_graph (push), graph_to_vector (pull), bidirectional (both).
The command exits non-zero when any item failed; the full result is printed
either way.

Examples:
  dualstorectl sync
  dualstorectl sync --direction both --batch-size 500
  dualstorectl sync --dry-run`,
	RunE: runSync,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show mirror lag and pending counts",
	RunE:  runStats,
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent sync log entries",
	RunE:  runLog,
}

func init() {
	syncCmd.Flags().StringVarP(&syncFlags.direction, "direction", "d", "", "sync direction (default SYNC_DIRECTION)")
	syncCmd.Flags().IntVar(&syncFlags.batchSize, "batch-size", 0, "rows per kind (default SYNC_BATCH_SIZE)")
	syncCmd.Flags().BoolVar(&syncFlags.dryRun, "dry-run", false, "count pending items without writing")

	logCmd.Flags().IntVar(&logFlags.limit, "limit", 50, "max rows")
	logCmd.Flags().StringVar(&logFlags.runID, "run", "", "only rows of this run id")

	syncCmd.AddCommand(logCmd)
	rootCmd.AddCommand(syncCmd, statsCmd)
}

func syncOptions() (syncsvc.Options, error) {
	opts := syncsvc.Options{BatchSize: syncFlags.batchSize, DryRun: syncFlags.dryRun}
	if syncFlags.direction != "" {
		dir, err := syncsvc.ParseDirection(syncFlags.direction)
		if err != nil {
			return opts, err
		}
		opts.Direction = dir
	}
	if opts.BatchSize < 0 {
		return opts, fmt.Errorf("--batch-size must not be negative")
	}
	return opts, nil
}

// newSyncService wires the coordinator without the adaptive scaler.
func newSyncService(cmd *cobra.Command, s *stores, cfg *config.Config) (*syncsvc.Service, error) {
	_, db, err := s.postgres(cmd.Context())
	if err != nil {
		return nil, err
	}
	g, err := s.graph()
	if err != nil {
		return nil, err
	}
	return syncsvc.NewService(syncsvc.NewRepository(db, s.log), g, nil, cfg, s.log), nil
}

func runSync(cmd *cobra.Command, _ []string) error {
	opts, err := syncOptions()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s := newStores(cfg, newLogger())
	defer s.Close(cmd.Context())

	svc, err := newSyncService(cmd, s, cfg)
	if err != nil {
		return err
	}

	res := svc.Sync(cmd.Context(), opts)
	if err := printValue(cmd.OutOrStdout(), output, res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("sync run %s finished with %d errors", res.RunID, len(res.Errors))
	}
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s := newStores(cfg, newLogger())
	defer s.Close(cmd.Context())

	svc, err := newSyncService(cmd, s, cfg)
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), output, svc.Stats(cmd.Context()))
}

func runLog(cmd *cobra.Command, _ []string) error {
	runID, err := parseRunID(logFlags.runID)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s := newStores(cfg, newLogger())
	defer s.Close(cmd.Context())

	svc, err := newSyncService(cmd, s, cfg)
	if err != nil {
		return err
	}
	entries, err := svc.RecentLog(cmd.Context(), logFlags.limit, runID)
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), output, entries)
}
