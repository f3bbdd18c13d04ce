package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/logicossoftware/go-mxf/snapshot"
)

// Set with -ldflags "-X main.Version=..." at build time.
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "mxfmeta %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
			fmt.Fprintf(w, "snapshot format v%d\n", snapshot.VersionV1)
			fmt.Fprintf(w, "%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
