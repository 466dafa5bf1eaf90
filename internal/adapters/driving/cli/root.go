// Package cli implements the command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driving"
	"github.com/arkiv-labs/arkiv/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services the commands call into, wired by SetServices before Execute.
var (
	engine      driving.Engine
	configStore driven.ConfigStore
)

var (
	datasetID string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "arkiv",
	Short: "Ask questions against personal data export archives",
	Long: `Arkiv indexes personal data export archives (connections,
positions, messages, articles) and answers natural-language questions
against them. All data stays local.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&datasetID, "dataset", "d", "default", "dataset to operate on")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// SetServices wires the engine and config store the commands use.
func SetServices(e driving.Engine, c driven.ConfigStore) {
	engine = e
	configStore = c
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
