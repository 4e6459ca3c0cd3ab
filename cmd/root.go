// Package cmd provides the process entry point via spf13/cobra: a root
// command and a "serve" subcommand that wires config, the reference
// Postgres adapter, and the sync core together.
package cmd

import (
	"github.com/spf13/cobra"
)

// Execute runs the root command, parsing os.Args.
func Execute() error {
	root := &cobra.Command{
		Use:   "diffsync",
		Short: "Differential synchronization server",
	}
	root.AddCommand(newServeCommand())
	return root.Execute()
}
