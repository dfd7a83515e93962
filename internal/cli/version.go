package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emergent-company/dualstore/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		b := version.Current()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "dualstorectl\n")
		fmt.Fprintf(out, "  Version:    %s\n", b.Version)
		fmt.Fprintf(out, "  Commit:     %s\n", b.GitCommit)
		fmt.Fprintf(out, "  Built:      %s\n", b.BuildTime)
		fmt.Fprintf(out, "  Go version: %s\n", b.GoVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
