package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags; "dev" otherwise.
var version = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the invoker version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
