package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/codecontext/internal/vectorindex"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "codecontext\n")
			fmt.Fprintf(out, "Version: %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "Build Mode: %s\n", vectorindex.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", vectorindex.DriverName)
			fmt.Fprintf(out, "Vector Extension: %v\n", vectorindex.VectorExtensionAvailable)
		},
	}
}
