package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version, Commit, and BuildTime are set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the claudefs-node version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "claudefs-node %s\ncommit: %s\nbuilt:  %s\n", Version, Commit, BuildTime)
	},
}
