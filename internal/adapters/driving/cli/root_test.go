package cli

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arkiv-labs/arkiv/internal/adapters/driven/config/file"
	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driving"
)

// fakeEngine records calls and serves canned responses.
type fakeEngine struct {
	imported  []string
	ensured   int
	deleted   []string
	askedK    int
	failAsk   error
	answer    *domain.Answer
	datasets  []domain.Dataset
	stats     *domain.ArchiveStats
	lastForce bool
}

func (f *fakeEngine) ImportArchive(_ context.Context, datasetID, zipPath string) error {
	f.imported = append(f.imported, datasetID+":"+zipPath)
	return nil
}

func (f *fakeEngine) EnsureIndex(_ context.Context, datasetID string, force bool) (*driving.BuildStatus, error) {
	f.ensured++
	f.lastForce = force
	return &driving.BuildStatus{
		DatasetID: datasetID,
		State:     domain.StateReady,
		Report:    &domain.BuildReport{RecordCount: 42, FileCount: 3},
	}, nil
}

func (f *fakeEngine) Status(_ context.Context, datasetID string) (*driving.BuildStatus, error) {
	return &driving.BuildStatus{DatasetID: datasetID, State: domain.StateAbsent}, nil
}

func (f *fakeEngine) Ask(_ context.Context, _, question string, k int) (*domain.Answer, error) {
	if f.failAsk != nil {
		return nil, f.failAsk
	}
	f.askedK = k
	if f.answer != nil {
		return f.answer, nil
	}
	return &domain.Answer{Text: fmt.Sprintf("Answer to %q.", question)}, nil
}

func (f *fakeEngine) DeleteDataset(_ context.Context, datasetID string) error {
	f.deleted = append(f.deleted, datasetID)
	return nil
}

func (f *fakeEngine) ListDatasets(_ context.Context) ([]domain.Dataset, error) {
	return f.datasets, nil
}

func (f *fakeEngine) Stats(_ context.Context, _ string) (*domain.ArchiveStats, error) {
	if f.stats != nil {
		return f.stats, nil
	}
	return &domain.ArchiveStats{RecentCounts: map[string]int{"30d": 0, "90d": 0, "365d": 0}}, nil
}

// setupTestServices wires a fake engine and a temp config store,
// returning the fake and a cleanup restoring the previous wiring.
func setupTestServices(t *testing.T) (*fakeEngine, func()) {
	t.Helper()

	oldEngine, oldConfig := engine, configStore
	fake := &fakeEngine{}
	cfg, err := file.NewConfigStore(t.TempDir())
	require.NoError(t, err)
	SetServices(fake, cfg)

	return fake, func() {
		engine = oldEngine
		configStore = oldConfig
	}
}
