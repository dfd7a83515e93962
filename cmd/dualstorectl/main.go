// Command dualstorectl is the operator CLI for the dual-store core.
package main

import (
	"os"

	"github.com/emergent-company/dualstore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
