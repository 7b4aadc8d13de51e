package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/normgate/normgate/config"
	"github.com/normgate/normgate/evaluate"
)

// EvaluateCmd classifies the rule corpus against a product
// description.
var EvaluateCmd = &cobra.Command{
	Use:   "evaluate [description]",
	Short: "Classify rules against a product description",
	Long: `Classify every rule the tenant may query against a product description.

Runs one reasoning-service call per rule through a bounded worker pool
and prints matching rules sorted by confidence.

Examples:
  normgate evaluate --tenant acme "230V electric kettle"
  normgate evaluate --tenant acme --all "12V LED strip"`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

var (
	evaluateTenantFlag string
	evaluateAllFlag    bool
)

func init() {
	EvaluateCmd.Flags().StringVar(&evaluateTenantFlag, "tenant", "", "Tenant ID (required)")
	EvaluateCmd.Flags().BoolVar(&evaluateAllFlag, "all", false, "Print non-matching rules too")
	EvaluateCmd.MarkFlagRequired("tenant")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := cmd.Context()
	eng, recorder, err := buildEngine(ctx, cfg, conn)
	if err != nil {
		return err
	}
	defer recorder.Flush()

	description := args[0]
	pterm.DefaultHeader.WithFullWidth().Printf("NormGate - Rule Applicability")
	pterm.Println()
	pterm.Info.Printf("Tenant: %s\n", evaluateTenantFlag)
	pterm.Info.Printf("Product: %s\n", description)
	pterm.Println()

	var progress *pterm.ProgressbarPrinter
	for event := range eng.EvaluateStream(ctx, evaluateTenantFlag, description) {
		switch e := event.(type) {
		case evaluate.ProgressEvent:
			if progress == nil {
				progress, _ = pterm.DefaultProgressbar.
					WithTotal(e.Total).
					WithTitle("Classifying rules").
					Start()
			}
			progress.Increment()
		case evaluate.CompleteEvent:
			if progress != nil {
				progress.Stop()
			}
			printResults(e)
		}
	}
	return nil
}

func printResults(e evaluate.CompleteEvent) {
	pterm.Println()
	if len(e.Matched) == 0 {
		pterm.Info.Printf("No matching rules out of %d evaluated\n", len(e.All))
	} else {
		pterm.Success.Printf("%d of %d rules apply\n", len(e.Matched), len(e.All))
		pterm.Println()
		for _, r := range e.Matched {
			pterm.Printf("  %3d%%  %s (%s)\n", r.Confidence, r.RuleName, r.RuleID)
			if r.Reasoning != "" {
				pterm.Printf("        %s\n", strings.ReplaceAll(r.Reasoning, "\n", "\n        "))
			}
		}
	}

	if evaluateAllFlag {
		pterm.Println()
		pterm.DefaultSection.Println("Non-matching rules")
		for _, r := range e.All {
			if r.Applies {
				continue
			}
			fmt.Printf("  %3d%%  %s (%s)\n", r.Confidence, r.RuleName, r.RuleID)
		}
	}
}
