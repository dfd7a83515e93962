package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create graph constraints and indexes",
	Long: `Create the graph store's uniqueness constraints and indexes for the
Document, Chunk and Entity labels. Statements are idempotent; each one is
reported as applied or failed.`,
	RunE: runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s := newStores(cfg, newLogger())
	defer s.Close(cmd.Context())

	g, err := s.graph()
	if err != nil {
		return err
	}

	report := g.EnsureSchema(cmd.Context())
	if err := printValue(cmd.OutOrStdout(), output, report); err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d schema statements failed", len(report.Failed))
	}
	return nil
}
