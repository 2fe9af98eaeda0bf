// Archivistad serves the Archivista confidence-update engine over HTTP and
// runs its graph maintenance passes.
//
// Usage:
//
//	# Start the server with defaults (in-memory store)
//	archivistad serve
//
//	# Persist to SQLite and configure via environment
//	ARCHIVISTA_STORAGE_PATH=/var/lib/archivista/graph.db archivistad serve
//
//	# Run one decay pass for a user and exit
//	archivistad decay --user alice
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "archivistad",
		Short:         "Archivista confidence-update engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to YAML config file")

	root.AddCommand(newServeCmd(), newDecayCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("archivistad %s (commit %s, built %s)\n", version, gitCommit, buildDate)
		},
	}
}
