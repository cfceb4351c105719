package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build information, set through -ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gradkit %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
		},
	}
}
