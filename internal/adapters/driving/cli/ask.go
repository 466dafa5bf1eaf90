package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arkiv-labs/arkiv/internal/adapters/driven/config/file"
	"github.com/arkiv-labs/arkiv/internal/core/domain"
)

var (
	askK    int
	askJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the dataset",
	Long: `Answers a natural-language question from the dataset's index.
Structured questions (counts, company lookups, recency) are answered
by direct lookups; everything else goes through hybrid retrieval and
returns the closest matches with citations.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askK, "top", "n", 0, "maximum results to cite (0 uses the configured default)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if engine == nil {
		return errors.New("engine not configured")
	}

	k := askK
	if k <= 0 && configStore != nil {
		k = file.AskK(configStore)
	}

	answer, err := engine.Ask(context.Background(), datasetID, args[0], k)
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotReady) {
			return fmt.Errorf("no index for dataset %s, run 'arkiv import' first", datasetID)
		}
		if errors.Is(err, domain.ErrBuildInProgress) {
			return fmt.Errorf("index for dataset %s is still building, retry shortly", datasetID)
		}
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		return outputAnswerJSON(cmd, answer)
	}
	outputAnswerText(cmd, answer)
	return nil
}

func outputAnswerJSON(cmd *cobra.Command, answer *domain.Answer) error {
	data, err := json.MarshalIndent(answer, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputAnswerText(cmd *cobra.Command, answer *domain.Answer) {
	cmd.Println(answer.Text)
	if len(answer.Citations) == 0 {
		return
	}

	cmd.Println()
	for i, c := range answer.Citations {
		cmd.Printf("  [%d] %s (%s row %d)\n", i+1, c.Title, c.SourceFile, c.Row)
		if c.Snippet != "" {
			for _, line := range strings.Split(c.Snippet, "\n") {
				cmd.Printf("      %s\n", line)
			}
		}
	}
}
