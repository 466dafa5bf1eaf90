package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the dataset's index state",
	Long: `Reports whether the dataset's index is absent, building, ready
or failed, without triggering a build.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if engine == nil {
		return errors.New("engine not configured")
	}

	status, err := engine.Status(context.Background(), datasetID)
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}
	printBuildStatus(cmd, status)
	return nil
}
