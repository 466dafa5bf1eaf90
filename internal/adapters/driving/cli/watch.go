package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkiv-labs/arkiv/internal/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild the index when the archive changes",
	Long: `Watches the dataset's archive directory and rebuilds the index
after changes settle. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce,
		"how long changes must settle before rebuilding")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if engine == nil {
		return errors.New("engine not configured")
	}

	// Build once up front so the watcher starts from a current index.
	if _, err := engine.EnsureIndex(cmd.Context(), datasetID, false); err != nil {
		return fmt.Errorf("initial build failed: %w", err)
	}

	archiveDir, err := resolveArchiveDir(cmd.Context(), datasetID)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Watching dataset %s (%s). Ctrl-C to stop.\n", datasetID, archiveDir)
	w := watch.New(engine, datasetID, archiveDir, watchDebounce)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// resolveArchiveDir asks the engine where the dataset's archive lives,
// so the watcher follows the registry's data root rather than
// re-deriving one from config.
func resolveArchiveDir(ctx context.Context, id string) (string, error) {
	datasets, err := engine.ListDatasets(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving archive dir: %w", err)
	}
	for _, ds := range datasets {
		if ds.ID == id {
			return ds.ArchiveDir, nil
		}
	}
	return "", fmt.Errorf("dataset %s not found", id)
}
