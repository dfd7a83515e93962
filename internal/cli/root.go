// Package cli implements dualstorectl, the operator CLI for the dual-store core.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/emergent-company/dualstore/internal/config"
)

var (
	envFile string
	output  string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dualstorectl",
	Short: "Operate the dual-store query router and sync coordinator",
	Long: `Command-line access to the relational/vector store and the graph store
behind the query router.

Configuration is read from the environment (the same variables as the
server); --env-file loads a dotenv file first.`,
	SilenceUsage: true,
}

// NewRootCommand returns the root command
func NewRootCommand() *cobra.Command {
	return rootCmd
}

// Execute runs the CLI. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig reads the dotenv file (missing files are fine) and parses the
// environment. Variables already set win over the file.
func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return config.Load()
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
