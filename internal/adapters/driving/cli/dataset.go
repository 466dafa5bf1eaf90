package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Manage datasets",
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all datasets",
	Args:  cobra.NoArgs,
	RunE:  runDatasetList,
}

var datasetDeleteCmd = &cobra.Command{
	Use:   "delete [dataset-id]",
	Short: "Delete a dataset's archive and index",
	Long: `Removes the dataset's extracted archive and index artifacts.
Deleting a dataset that does not exist is not an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runDatasetDelete,
}

func init() {
	datasetCmd.AddCommand(datasetListCmd)
	datasetCmd.AddCommand(datasetDeleteCmd)
	rootCmd.AddCommand(datasetCmd)
}

func runDatasetList(cmd *cobra.Command, _ []string) error {
	if engine == nil {
		return errors.New("engine not configured")
	}

	datasets, err := engine.ListDatasets(context.Background())
	if err != nil {
		return fmt.Errorf("listing datasets failed: %w", err)
	}

	if len(datasets) == 0 {
		cmd.Println("No datasets.")
		return nil
	}

	cmd.Println("Datasets:")
	for _, ds := range datasets {
		cmd.Printf("  %s (%s)\n", ds.ID, ds.State)
	}
	return nil
}

func runDatasetDelete(cmd *cobra.Command, args []string) error {
	if engine == nil {
		return errors.New("engine not configured")
	}

	id := args[0]
	if err := engine.DeleteDataset(context.Background(), id); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	cmd.Printf("Dataset %s deleted.\n", id)
	return nil
}
