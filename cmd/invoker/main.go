// Command invoker runs the full local invocation fabric: the pull-based
// runtime API and all four event sources, sharing one materialized
// resource graph.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "invoker",
		Short: "Local invocation fabric for SAM-style serverless templates",
		Long:  "Runs the runtime API and the API/queue/bus/S3 event sources against a materialized resource graph.",
	}

	rootCmd.AddCommand(serveCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
