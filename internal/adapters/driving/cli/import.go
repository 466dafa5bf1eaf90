package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var importSkipIndex bool

var importCmd = &cobra.Command{
	Use:   "import [zip-path]",
	Short: "Import a data export archive",
	Long: `Extracts an export zip into the dataset's archive location,
replacing any previously imported archive, and builds the index.
The export root inside the zip is detected automatically.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importSkipIndex, "skip-index", false, "import without building the index")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if engine == nil {
		return errors.New("engine not configured")
	}

	ctx := context.Background()
	zipPath := args[0]

	cmd.Printf("Importing %s into dataset %s...\n", zipPath, datasetID)
	if err := engine.ImportArchive(ctx, datasetID, zipPath); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	cmd.Println("Archive imported.")

	if importSkipIndex {
		cmd.Println("Run 'arkiv build' to index it.")
		return nil
	}

	cmd.Println("Building index...")
	status, err := engine.EnsureIndex(ctx, datasetID, false)
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}
	printBuildStatus(cmd, status)
	return nil
}
