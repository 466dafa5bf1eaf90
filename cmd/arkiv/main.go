// Command arkiv indexes personal data export archives and answers
// questions against them.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/arkiv-labs/arkiv/internal/adapters/driven/config/file"
	"github.com/arkiv-labs/arkiv/internal/adapters/driven/embedding/tfidf"
	"github.com/arkiv-labs/arkiv/internal/adapters/driven/storage/sqlite"
	"github.com/arkiv-labs/arkiv/internal/adapters/driving/cli"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
	"github.com/arkiv-labs/arkiv/internal/core/services"
	"github.com/arkiv-labs/arkiv/internal/decoders"
	"github.com/arkiv-labs/arkiv/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A .env next to the binary can override config locations.
	godotenv.Load() //nolint:errcheck // missing .env is fine

	cfg, err := file.NewConfigStore(os.Getenv("ARKIV_CONFIG_DIR"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.GetBool(file.KeyVerbose) {
		logger.SetVerbose(true)
	}

	dataDir := os.Getenv("ARKIV_DATA_DIR")
	if dataDir == "" {
		dataDir, err = file.DataDir(cfg)
		if err != nil {
			return fmt.Errorf("resolving data dir: %w", err)
		}
	}

	store := sqlite.NewStore()
	registry := services.NewRegistry(dataDir, store)
	if err := registry.Restore(); err != nil {
		return fmt.Errorf("restoring datasets: %w", err)
	}

	builder := services.NewIndexBuilder(
		decoders.NewDefaultRegistry(),
		store,
		func() driven.Embedder { return tfidf.New() },
	)
	coordinator := services.NewCoordinator(
		services.NewChangeDetector(), builder, store, file.BuildTimeout(cfg))

	engine := services.NewEngine(
		registry,
		coordinator,
		services.NewRetriever(),
		services.NewSynthesizer(),
		services.NewInsights(),
		restoreEmbedder,
		file.AskK(cfg),
	)

	cli.SetServices(engine, cfg)
	return cli.Execute()
}

// restoreEmbedder reconstructs the query-time embedder from the state
// an index stored at build time.
func restoreEmbedder(name string, state []byte) (driven.Embedder, error) {
	if name != tfidf.Name {
		return nil, fmt.Errorf("unknown embedder %q", name)
	}
	return tfidf.FromState(state)
}
