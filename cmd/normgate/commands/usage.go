package commands

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/normgate/normgate/ai/tracker"
	"github.com/normgate/normgate/config"
	"github.com/normgate/normgate/entitle"
	"github.com/normgate/normgate/logger"
	"github.com/normgate/normgate/usage"
)

// UsageCmd groups usage reporting operations.
var UsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show recorded partition usage",
	Long: `Show recorded partition usage and AI model spend.

Examples:
  normgate usage stats --tenant acme --days 30
  normgate usage ai --days 7`,
}

var usageStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a tenant's partition accesses",
	RunE:  runUsageStats,
}

var usageAICmd = &cobra.Command{
	Use:   "ai",
	Short: "Show aggregate AI model usage and cost",
	RunE:  runUsageAI,
}

var (
	usageTenantFlag string
	usageDaysFlag   int
)

func init() {
	usageStatsCmd.Flags().StringVar(&usageTenantFlag, "tenant", "", "Tenant ID (required)")
	usageStatsCmd.Flags().IntVar(&usageDaysFlag, "days", 30, "Trailing window in days")
	usageStatsCmd.MarkFlagRequired("tenant")
	usageAICmd.Flags().IntVar(&usageDaysFlag, "days", 30, "Trailing window in days")

	UsageCmd.AddCommand(usageStatsCmd)
	UsageCmd.AddCommand(usageAICmd)
}

func runUsageStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	recorder := usage.NewRecorder(conn, entitle.NewSQLStore(conn), logger.Logger)
	stats, err := recorder.Stats(cmd.Context(), usageTenantFlag, usageDaysFlag)
	if err != nil {
		return err
	}

	if len(stats) == 0 {
		pterm.Info.Printf("No usage recorded for %s in the last %d days\n", usageTenantFlag, usageDaysFlag)
		return nil
	}

	data := pterm.TableData{{"Partition", "Operation", "Package", "Count"}}
	for _, s := range stats {
		pkg := s.PackageType
		if pkg == "" {
			pkg = "free"
		}
		data = append(data, []string{s.Partition, s.Operation, pkg, pterm.Sprintf("%d", s.Count)})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	return nil
}

func runUsageAI(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	since := time.Now().AddDate(0, 0, -usageDaysFlag)
	stats, err := tracker.NewUsageTracker(conn).GetUsageStats(since)
	if err != nil {
		return err
	}

	pterm.Info.Printf("AI usage since %s\n", since.Format("2006-01-02"))
	pterm.Printf("  Requests: %d (%.0f%% success)\n", stats.TotalRequests, stats.SuccessRate*100)
	pterm.Printf("  Tokens:   %d\n", stats.TotalTokens)
	pterm.Printf("  Cost:     $%.4f\n", stats.TotalCost)
	return nil
}
