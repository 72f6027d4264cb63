package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build metadata, set at build time via ldflags.
// Example: go build -ldflags "-X github.com/xkilldash9x/webgym/cmd.Version=1.0.0"
var (
	Version   = "0.1.0"
	Commit    = "none"
	BuildDate = "unknown"
)

// newVersionCmd reports the build metadata.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "webgym %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}
