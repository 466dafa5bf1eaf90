package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driving"
	"github.com/arkiv-labs/arkiv/internal/logger"
)

const currentIndexFile = "current.db"

// readerRef wraps an index reader with a borrow count so a promote or
// delete only closes the artifact after every in-flight query has
// returned its snapshot.
type readerRef struct {
	driven.IndexReader

	mu      sync.Mutex
	borrows int
	retired bool
}

func newReaderRef(r driven.IndexReader) *readerRef {
	return &readerRef{IndexReader: r}
}

func (r *readerRef) acquire() {
	r.mu.Lock()
	r.borrows++
	r.mu.Unlock()
}

func (r *readerRef) release() {
	r.mu.Lock()
	r.borrows--
	closeNow := r.retired && r.borrows == 0
	r.mu.Unlock()
	if closeNow {
		r.IndexReader.Close() //nolint:errcheck
	}
}

// retire marks the reader superseded. The underlying artifact closes
// once the last borrowed snapshot is released.
func (r *readerRef) retire() {
	r.mu.Lock()
	r.retired = true
	closeNow := r.borrows == 0
	r.mu.Unlock()
	if closeNow {
		r.IndexReader.Close() //nolint:errcheck
	}
}

// datasetState is the registry's live state for one dataset. State
// transitions and the current-reader pointer are guarded by mu; the
// reader itself is safe for concurrent queries.
type datasetState struct {
	mu sync.RWMutex

	id         string
	archiveDir string
	indexDir   string

	state         domain.BuildState
	fingerprint   domain.Fingerprint
	report        *domain.BuildReport
	failureReason string
	reader        *readerRef
}

// snapshot returns the dataset view under the lock.
func (d *datasetState) snapshot() domain.Dataset {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return domain.Dataset{
		ID:          d.id,
		ArchiveDir:  d.archiveDir,
		IndexDir:    d.indexDir,
		State:       d.state,
		Fingerprint: d.fingerprint,
	}
}

// status returns the build status under the lock.
func (d *datasetState) status() *driving.BuildStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st := &driving.BuildStatus{
		DatasetID:     d.id,
		State:         d.state,
		Fingerprint:   d.fingerprint,
		FailureReason: d.failureReason,
	}
	if d.report != nil {
		r := *d.report
		st.Report = &r
	}
	return st
}

// currentReader returns the reader for the current index, nil when no
// index was ever built.
func (d *datasetState) currentReader() driven.IndexReader {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.reader == nil {
		return nil
	}
	return d.reader
}

// borrowReader pins the current reader against a concurrent promote.
// Callers must invoke the returned release once done; both return
// values are nil when no index was ever built.
func (d *datasetState) borrowReader() (driven.IndexReader, func()) {
	d.mu.RLock()
	ref := d.reader
	if ref != nil {
		ref.acquire()
	}
	d.mu.RUnlock()

	if ref == nil {
		return nil, nil
	}
	return ref, ref.release
}

// currentIndexPath is where the promoted artifact lives.
func (d *datasetState) currentIndexPath() string {
	return filepath.Join(d.indexDir, currentIndexFile)
}

// Registry tracks datasets and their per-dataset directories under a
// single data root. Datasets are isolated: nothing in one dataset's
// archive or index is visible to another.
type Registry struct {
	mu       sync.Mutex
	dataRoot string
	store    driven.IndexStore
	datasets map[string]*datasetState
}

// NewRegistry creates a dataset registry rooted at dataRoot.
func NewRegistry(dataRoot string, store driven.IndexStore) *Registry {
	return &Registry{
		dataRoot: dataRoot,
		store:    store,
		datasets: make(map[string]*datasetState),
	}
}

// validDatasetID rejects identifiers that would escape the data root.
func validDatasetID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}

// Resolve returns the dataset's state, creating an Absent dataset on
// first reference. An existing promoted index from a previous run is
// reopened; stale staging artifacts are discarded.
func (r *Registry) Resolve(id string) (*datasetState, error) {
	if !validDatasetID(id) {
		return nil, fmt.Errorf("dataset id %q: %w", id, domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ds, ok := r.datasets[id]; ok {
		return ds, nil
	}

	ds := &datasetState{
		id:         id,
		archiveDir: filepath.Join(r.dataRoot, "archives", id),
		indexDir:   filepath.Join(r.dataRoot, "index", id),
		state:      domain.StateAbsent,
	}
	if err := os.MkdirAll(ds.archiveDir, 0700); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}
	if err := os.MkdirAll(ds.indexDir, 0700); err != nil {
		return nil, fmt.Errorf("creating index dir: %w", err)
	}

	r.removeStaleStaging(ds)
	r.reopenCurrent(ds)

	r.datasets[id] = ds
	return ds, nil
}

// removeStaleStaging deletes staging artifacts left behind by an
// interrupted build.
func (r *Registry) removeStaleStaging(ds *datasetState) {
	stale, err := filepath.Glob(filepath.Join(ds.indexDir, "staging-*.db"))
	if err != nil {
		return
	}
	for _, path := range stale {
		logger.Debug("Removing stale staging artifact %s", path)
		os.Remove(path) //nolint:errcheck // best effort cleanup
	}
}

// reopenCurrent restores Ready state from a promoted artifact that
// survived a restart.
func (r *Registry) reopenCurrent(ds *datasetState) {
	path := ds.currentIndexPath()
	if _, err := os.Stat(path); err != nil {
		return
	}

	reader, err := r.store.OpenReader(path)
	if err != nil {
		logger.Warn("Dataset %s: existing index unreadable: %v", ds.id, err)
		return
	}
	manifest, err := reader.Manifest(context.Background())
	if err != nil {
		logger.Warn("Dataset %s: existing index has no manifest: %v", ds.id, err)
		reader.Close() //nolint:errcheck
		return
	}

	ds.reader = newReaderRef(reader)
	ds.state = domain.StateReady
	ds.fingerprint = manifest.Fingerprint
	report := manifest.Report
	ds.report = &report
	logger.Info("Dataset %s: reopened index %s (%d records)", ds.id, manifest.BuildID, manifest.RecordCount)
}

// Delete releases all state for the dataset: the open reader, the
// index artifacts and the extracted archive. Idempotent.
func (r *Registry) Delete(_ context.Context, id string) error {
	if !validDatasetID(id) {
		return fmt.Errorf("dataset id %q: %w", id, domain.ErrInvalidInput)
	}

	r.mu.Lock()
	ds, ok := r.datasets[id]
	delete(r.datasets, id)
	r.mu.Unlock()

	if ok {
		ds.mu.Lock()
		old := ds.reader
		ds.reader = nil
		ds.state = domain.StateAbsent
		ds.mu.Unlock()
		if old != nil {
			old.retire()
		}
	}

	archiveDir := filepath.Join(r.dataRoot, "archives", id)
	indexDir := filepath.Join(r.dataRoot, "index", id)
	if err := os.RemoveAll(archiveDir); err != nil {
		return fmt.Errorf("removing archive dir: %w", err)
	}
	if err := os.RemoveAll(indexDir); err != nil {
		return fmt.Errorf("removing index dir: %w", err)
	}

	logger.Info("Dataset %s deleted", id)
	return nil
}

// ListActive returns a snapshot of all resolved datasets, sorted by ID.
func (r *Registry) ListActive() []domain.Dataset {
	r.mu.Lock()
	states := make([]*datasetState, 0, len(r.datasets))
	for _, ds := range r.datasets {
		states = append(states, ds)
	}
	r.mu.Unlock()

	datasets := make([]domain.Dataset, 0, len(states))
	for _, ds := range states {
		datasets = append(datasets, ds.snapshot())
	}
	sort.Slice(datasets, func(i, j int) bool { return datasets[i].ID < datasets[j].ID })
	return datasets
}

// Restore resolves every dataset that left directories under the data
// root in a previous run.
func (r *Registry) Restore() error {
	for _, sub := range []string{"archives", "index"} {
		entries, err := os.ReadDir(filepath.Join(r.dataRoot, sub))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("reading %s: %w", sub, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if _, err := r.Resolve(entry.Name()); err != nil {
				logger.Warn("Skipping dataset dir %s: %v", entry.Name(), err)
			}
		}
	}
	return nil
}
