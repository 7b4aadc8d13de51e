package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/normgate/normgate/cmd/normgate/commands"
	"github.com/normgate/normgate/logger"
)

var rootCmd = &cobra.Command{
	Use:   "normgate",
	Short: "NormGate - Rule applicability engine",
	Long: `NormGate - Compliance rule applicability engine.

NormGate classifies which compliance rules apply to a product
description, scoped to the rule partitions a tenant's entitlements
allow.

Available commands:
  evaluate     - Classify rules against a product description
  corpus       - Inspect and reload the rule corpus
  entitlements - Manage tenant package entitlements
  usage        - Show recorded partition usage
  config       - Show effective configuration
  version      - Show version information

Examples:
  normgate evaluate --tenant acme "230V electric kettle"
  normgate corpus stats
  normgate entitlements ls --tenant acme
  normgate entitlements grant --tenant acme --package iso_box --trial
  normgate usage stats --tenant acme --days 30`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.EvaluateCmd)
	rootCmd.AddCommand(commands.CorpusCmd)
	rootCmd.AddCommand(commands.EntitlementsCmd)
	rootCmd.AddCommand(commands.UsageCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
