package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show connection statistics for the dataset",
	Long: `Summarises the dataset's connection records: top companies,
positions and industries, connections per month and how many
connections were added recently.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if engine == nil {
		return errors.New("engine not configured")
	}

	stats, err := engine.Stats(context.Background(), datasetID)
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotReady) {
			return fmt.Errorf("no index for dataset %s, run 'arkiv import' first", datasetID)
		}
		return fmt.Errorf("stats failed: %w", err)
	}

	if statsJSON {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal stats: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	printCounts(cmd, "Top companies", stats.TopCompanies)
	printCounts(cmd, "Top positions", stats.TopPositions)
	printCounts(cmd, "Top industries", stats.TopIndustries)
	printCounts(cmd, "Connections by month", stats.ConnectionsByMonth)

	cmd.Println("Recent connections:")
	for _, window := range []string{"30d", "90d", "365d"} {
		cmd.Printf("  last %-4s %d\n", window, stats.RecentCounts[window])
	}
	return nil
}

func printCounts(cmd *cobra.Command, heading string, counts []domain.LabelCount) {
	if len(counts) == 0 {
		return
	}
	cmd.Printf("%s:\n", heading)
	for _, c := range counts {
		cmd.Printf("  %-30s %d\n", c.Label, c.Count)
	}
	cmd.Println()
}
