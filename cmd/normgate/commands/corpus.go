package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/normgate/normgate/config"
	"github.com/normgate/normgate/corpus"
	"github.com/normgate/normgate/logger"
)

// CorpusCmd groups rule corpus operations.
var CorpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Inspect and reload the rule corpus",
	Long: `Inspect and reload the rule corpus.

Examples:
  normgate corpus stats    # Rule counts per partition
  normgate corpus ls       # List partition files`,
}

var corpusStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show rule counts per partition",
	RunE:  runCorpusStats,
}

var corpusLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List partition files in the corpus directory",
	RunE:  runCorpusLs,
}

func init() {
	CorpusCmd.AddCommand(corpusStatsCmd)
	CorpusCmd.AddCommand(corpusLsCmd)
}

func runCorpusStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	rules := corpus.NewStore(cfg.Corpus.Dir, logger.Logger)
	partitions, err := rules.ListPartitions()
	if err != nil {
		return err
	}

	// Load everything so stats cover the whole corpus
	rules.Load(partitions)

	stats := rules.Stats()
	total := 0
	data := pterm.TableData{{"Partition", "Rules"}}
	for _, partition := range partitions {
		count := stats[partition]
		total += count
		data = append(data, []string{partition, pterm.Sprintf("%d", count)})
	}

	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	pterm.Println()
	pterm.Info.Printf("%d partitions, %d rules\n", len(partitions), total)
	return nil
}

func runCorpusLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	rules := corpus.NewStore(cfg.Corpus.Dir, logger.Logger)
	partitions, err := rules.ListPartitions()
	if err != nil {
		return err
	}

	for _, partition := range partitions {
		pterm.Println(partition)
	}
	return nil
}
