package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/loadmap/internal/loadable"
)

var (
	// Version information - typically set via ldflags at build time
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of loadmap",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "loadmap %s\n", Version)
		fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
		fmt.Fprintf(out, "Build date: %s\n", BuildDate)
		fmt.Fprintf(out, "Extraction rules: v%s\n", loadable.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
