package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roasbeef/gamecore/internal/build"
)

// versionCmd prints build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gamecore %s\n", build.Version())
		if build.CommitHash != "" {
			fmt.Printf("commit: %s\n", build.CommitHash)
		}
		fmt.Printf("go: %s\n", build.GoVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
