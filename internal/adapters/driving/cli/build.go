package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driving"
)

var buildForce bool

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build or refresh the dataset's index",
	Long: `Ensures the dataset's index matches its imported archive.
Unchanged archives are a no-op unless --force is given. Concurrent
builds for the same dataset share one build.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVarP(&buildForce, "force", "f", false, "rebuild even when the archive is unchanged")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	if engine == nil {
		return errors.New("engine not configured")
	}

	status, err := engine.EnsureIndex(context.Background(), datasetID, buildForce)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	printBuildStatus(cmd, status)
	return nil
}

// printBuildStatus renders a build status with its report.
func printBuildStatus(cmd *cobra.Command, status *driving.BuildStatus) {
	cmd.Printf("Dataset %s: %s\n", status.DatasetID, status.State)
	if status.State == domain.StateFailed && status.FailureReason != "" {
		cmd.Printf("  Reason: %s\n", status.FailureReason)
	}
	if status.Report == nil {
		return
	}

	r := status.Report
	cmd.Printf("  Records: %d from %d files (%d skipped)\n", r.RecordCount, r.FileCount, r.SkippedFiles)
	if r.Duration > 0 {
		cmd.Printf("  Duration: %s\n", r.Duration.Round(time.Millisecond))
	}
	for _, w := range r.Warnings {
		if w.SourceFile != "" {
			cmd.Printf("  Warning: %s row %d: %s\n", w.SourceFile, w.Row, w.Message)
		} else {
			cmd.Printf("  Warning: %s\n", w.Message)
		}
	}
}
