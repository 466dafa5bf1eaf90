package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arkiv-labs/arkiv/internal/archive"
	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driving"
	"github.com/arkiv-labs/arkiv/internal/logger"
)

// Ensure Engine implements the interface.
var _ driving.Engine = (*Engine)(nil)

// EmbedderFactory reconstructs a query-time embedder from the state an
// index stored at build time.
type EmbedderFactory func(name string, state []byte) (driven.Embedder, error)

// Engine is the facade the driving layer calls into. It composes the
// registry, coordinator, retriever, synthesizer and insights services.
type Engine struct {
	registry    *Registry
	coordinator *Coordinator
	retriever   *Retriever
	synthesizer *Synthesizer
	insights    *Insights
	embedders   EmbedderFactory
	defaultK    int
}

// NewEngine creates the engine facade. embedders may be nil for
// keyword-only retrieval.
func NewEngine(
	registry *Registry,
	coordinator *Coordinator,
	retriever *Retriever,
	synthesizer *Synthesizer,
	insights *Insights,
	embedders EmbedderFactory,
	defaultK int,
) *Engine {
	if defaultK <= 0 {
		defaultK = 8
	}
	return &Engine{
		registry:    registry,
		coordinator: coordinator,
		retriever:   retriever,
		synthesizer: synthesizer,
		insights:    insights,
		embedders:   embedders,
		defaultK:    defaultK,
	}
}

// ImportArchive extracts an export zip into the dataset's archive
// location, replacing any previous archive. The export root inside
// the zip (wrapper directories included) is detected automatically.
func (e *Engine) ImportArchive(_ context.Context, datasetID, zipPath string) error {
	ds, err := e.registry.Resolve(datasetID)
	if err != nil {
		return err
	}

	logger.Section("Archive Import")
	logger.Info("Dataset %s: importing %s", datasetID, zipPath)

	// Extract next to the final location so the swap is a rename.
	tmpDir, err := os.MkdirTemp(filepath.Dir(ds.archiveDir), ".import-*")
	if err != nil {
		return fmt.Errorf("creating import dir: %w", err)
	}
	defer os.RemoveAll(tmpDir) //nolint:errcheck // best effort cleanup

	if err := archive.Extract(zipPath, tmpDir); err != nil {
		return fmt.Errorf("extracting archive: %w", err)
	}
	root := archive.FindExportRoot(tmpDir)

	if err := os.RemoveAll(ds.archiveDir); err != nil {
		return fmt.Errorf("removing previous archive: %w", err)
	}
	if err := os.Rename(root, ds.archiveDir); err != nil {
		return fmt.Errorf("installing archive: %w", err)
	}

	logger.Info("Dataset %s: archive imported", datasetID)
	return nil
}

// EnsureIndex guarantees the dataset's index matches its archive.
func (e *Engine) EnsureIndex(ctx context.Context, datasetID string, force bool) (*driving.BuildStatus, error) {
	ds, err := e.registry.Resolve(datasetID)
	if err != nil {
		return nil, err
	}
	return e.coordinator.Ensure(ctx, ds, force)
}

// Status returns the dataset's build state without triggering or
// waiting on a build.
func (e *Engine) Status(_ context.Context, datasetID string) (*driving.BuildStatus, error) {
	ds, err := e.registry.Resolve(datasetID)
	if err != nil {
		return nil, err
	}
	return ds.status(), nil
}

// Ask answers a question from the dataset's current index. Structured
// intents are answered by direct lookups; everything else goes through
// hybrid retrieval.
func (e *Engine) Ask(ctx context.Context, datasetID, question string, k int) (*domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("empty question: %w", domain.ErrInvalidInput)
	}

	ds, err := e.registry.Resolve(datasetID)
	if err != nil {
		return nil, err
	}
	reader, release := ds.borrowReader()
	if reader == nil {
		return nil, noIndexErr(ds)
	}
	defer release()

	if answer, err := e.synthesizer.TryIntent(ctx, reader, question); err != nil {
		return nil, err
	} else if answer != nil {
		return answer, nil
	}

	if k <= 0 {
		k = e.defaultK
	}
	retrieved, err := e.retriever.Retrieve(ctx, reader, e.queryEmbedder(ctx, reader), question, k)
	if err != nil {
		return nil, err
	}
	return e.synthesizer.Compose(retrieved), nil
}

// queryEmbedder reconstructs the build-time embedder so the question
// is embedded against the index's own vocabulary. Degrades to nil
// (keyword-only) when the index carries no embeddings.
func (e *Engine) queryEmbedder(ctx context.Context, reader driven.IndexReader) driven.Embedder {
	if e.embedders == nil {
		return nil
	}
	name, state, err := reader.EmbedderState(ctx)
	if err != nil || name == "" {
		return nil
	}
	embedder, err := e.embedders(name, state)
	if err != nil {
		logger.Warn("Restoring embedder %s failed, using keyword search only: %v", name, err)
		return nil
	}
	return embedder
}

// DeleteDataset releases all resources for the dataset. Idempotent.
func (e *Engine) DeleteDataset(ctx context.Context, datasetID string) error {
	return e.registry.Delete(ctx, datasetID)
}

// ListDatasets returns a snapshot of all active datasets.
func (e *Engine) ListDatasets(_ context.Context) ([]domain.Dataset, error) {
	return e.registry.ListActive(), nil
}

// Stats computes connection insights from the current index.
func (e *Engine) Stats(ctx context.Context, datasetID string) (*domain.ArchiveStats, error) {
	ds, err := e.registry.Resolve(datasetID)
	if err != nil {
		return nil, err
	}
	reader, release := ds.borrowReader()
	if reader == nil {
		return nil, noIndexErr(ds)
	}
	defer release()
	return e.insights.Stats(ctx, reader)
}

// noIndexErr reports why a dataset cannot serve queries yet. A dataset
// mid-build on its first index gets ErrBuildInProgress so callers can
// retry instead of re-importing.
func noIndexErr(ds *datasetState) error {
	st := ds.status()
	if st.State == domain.StateBuilding {
		return fmt.Errorf("dataset %s: %w", st.DatasetID, domain.ErrBuildInProgress)
	}
	return fmt.Errorf("dataset %s: %w", st.DatasetID, domain.ErrIndexNotReady)
}
