package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/normgate/normgate/config"
)

// ConfigCmd shows the effective configuration.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective configuration",
	Long: `Show the effective configuration after merging defaults, config
files, and environment variables. Secrets are redacted.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	RunE:  runConfigShow,
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	redact := func(s string) string {
		if s == "" {
			return "(not set)"
		}
		return "****"
	}

	data := pterm.TableData{
		{"Setting", "Value"},
		{"database.path", cfg.Database.Path},
		{"corpus.dir", cfg.Corpus.Dir},
		{"openrouter.api_key", redact(cfg.OpenRouter.APIKey)},
		{"openrouter.model", cfg.OpenRouter.Model},
		{"openrouter.temperature", pterm.Sprintf("%.2f", cfg.OpenRouter.Temperature)},
		{"openrouter.max_tokens", pterm.Sprintf("%d", cfg.OpenRouter.MaxTokens)},
		{"evaluator.concurrency", pterm.Sprintf("%d", cfg.Concurrency())},
		{"evaluator.call_timeout", cfg.CallTimeout().String()},
		{"redis.addr", cfg.Redis.Addr},
		{"redis.password", redact(cfg.Redis.Password)},
		{"entitlements.cache_ttl", cfg.EntitlementCacheTTL().String()},
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	return nil
}
