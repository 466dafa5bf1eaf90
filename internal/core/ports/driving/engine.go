package driving

import (
	"context"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
)

// BuildStatus reports the state of a dataset's index.
type BuildStatus struct {
	// DatasetID identifies the dataset.
	DatasetID string

	// State is the dataset's build state.
	State domain.BuildState

	// Fingerprint is the archive fingerprint of the current index,
	// empty when no index exists.
	Fingerprint domain.Fingerprint

	// Report is the build report of the current index, nil when no
	// index exists.
	Report *domain.BuildReport

	// FailureReason describes the last failed build attempt, empty
	// unless State is Failed.
	FailureReason string
}

// Engine is the narrow interface the external layer calls into. The
// web front end, upload handling and session issuance live outside the
// core and consume exactly this surface.
type Engine interface {
	// ImportArchive extracts an export zip into the dataset's archive
	// location, replacing any previous archive.
	ImportArchive(ctx context.Context, datasetID, zipPath string) error

	// EnsureIndex guarantees the dataset's index matches its archive.
	// It is a no-op returning the current Ready status when the
	// fingerprint is unchanged and force is false. It blocks while a
	// build runs; concurrent calls for the same dataset share one
	// build and observe the same result.
	EnsureIndex(ctx context.Context, datasetID string, force bool) (*BuildStatus, error)

	// Status returns the dataset's build state without triggering or
	// waiting on a build.
	Status(ctx context.Context, datasetID string) (*BuildStatus, error)

	// Ask answers a question from the dataset's current index.
	// Fails with domain.ErrIndexNotReady if no index was ever built.
	Ask(ctx context.Context, datasetID, question string, k int) (*domain.Answer, error)

	// DeleteDataset releases all archive, index and record-store
	// resources for the dataset. Idempotent.
	DeleteDataset(ctx context.Context, datasetID string) error

	// ListDatasets returns a snapshot of all active datasets.
	ListDatasets(ctx context.Context) ([]domain.Dataset, error)

	// Stats computes connection insights from the current index.
	Stats(ctx context.Context, datasetID string) (*domain.ArchiveStats, error)
}
