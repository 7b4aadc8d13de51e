package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/normgate/normgate/version"
)

// VersionCmd prints build information.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		pterm.Printf("normgate %s\n", info.Version)
		pterm.Printf("  commit:   %s\n", info.CommitHash)
		pterm.Printf("  built:    %s\n", info.BuildTime)
		pterm.Printf("  go:       %s\n", info.GoVersion)
		pterm.Printf("  platform: %s\n", info.Platform)
	},
}
