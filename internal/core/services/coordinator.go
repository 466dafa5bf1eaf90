package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driving"
	"github.com/arkiv-labs/arkiv/internal/logger"
)

// Coordinator serialises builds per dataset. Concurrent EnsureIndex
// calls for one dataset collapse into a single build and all callers
// observe its result; queries keep hitting the previous index until
// the new one is promoted.
type Coordinator struct {
	detector *ChangeDetector
	builder  *IndexBuilder
	store    driven.IndexStore
	timeout  time.Duration

	group  singleflight.Group
	builds atomic.Int64
}

// NewCoordinator creates a build coordinator. timeout bounds one build
// attempt; zero means no bound.
func NewCoordinator(
	detector *ChangeDetector,
	builder *IndexBuilder,
	store driven.IndexStore,
	timeout time.Duration,
) *Coordinator {
	return &Coordinator{
		detector: detector,
		builder:  builder,
		store:    store,
		timeout:  timeout,
	}
}

// Builds returns how many builds actually ran. Unchanged-fingerprint
// no-ops and piggybacked callers do not count.
func (c *Coordinator) Builds() int64 {
	return c.builds.Load()
}

// Ensure guarantees the dataset's index matches its archive, blocking
// while a build runs. With force false and an unchanged fingerprint it
// returns the current Ready status without building.
func (c *Coordinator) Ensure(ctx context.Context, ds *datasetState, force bool) (*driving.BuildStatus, error) {
	fp, err := c.detector.Fingerprint(ds.archiveDir)
	if err != nil {
		return nil, err
	}

	if !force && c.upToDate(ds, fp) {
		logger.Debug("Dataset %s: fingerprint unchanged, index up to date", ds.id)
		return ds.status(), nil
	}

	// All concurrent callers for one dataset share the build below and
	// therefore observe the same resulting index.
	_, err, _ = c.group.Do(ds.id, func() (any, error) {
		if !force && c.upToDate(ds, fp) {
			return nil, nil
		}
		return nil, c.build(ctx, ds, fp)
	})
	if err != nil {
		return ds.status(), err
	}
	return ds.status(), nil
}

// upToDate reports whether the dataset has a Ready index built from
// this exact fingerprint.
func (c *Coordinator) upToDate(ds *datasetState, fp domain.Fingerprint) bool {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.state == domain.StateReady && ds.fingerprint.Equal(fp)
}

// build runs one build attempt and promotes the result. The dataset is
// Building for the duration; on failure it goes Failed while any
// previously promoted index stays current and queryable.
func (c *Coordinator) build(ctx context.Context, ds *datasetState, fp domain.Fingerprint) error {
	ds.mu.Lock()
	ds.state = domain.StateBuilding
	ds.failureReason = ""
	ds.mu.Unlock()

	buildID := uuid.New().String()
	staging := filepath.Join(ds.indexDir, "staging-"+buildID+".db")

	// The build must not die with the first caller that gives up:
	// piggybacked callers are still waiting on it.
	bctx := context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(bctx, c.timeout)
		defer cancel()
	}

	c.builds.Add(1)
	manifest, err := c.builder.Build(bctx, ds.id, buildID, ds.archiveDir, staging, fp)
	if err != nil {
		os.Remove(staging) //nolint:errcheck // best effort cleanup
		c.markFailed(ds, err)
		return err
	}

	if err := c.promote(ds, staging, manifest); err != nil {
		os.Remove(staging) //nolint:errcheck // best effort cleanup
		c.markFailed(ds, err)
		return &domain.BuildError{DatasetID: ds.id, Report: manifest.Report, Err: err}
	}

	logger.Info("Dataset %s: index %s promoted (%d records)", ds.id, buildID, manifest.RecordCount)
	return nil
}

// promote renames the staging artifact over the current one and swaps
// the dataset's reader. Queries already holding the old reader keep it
// open until the last one releases its borrow.
func (c *Coordinator) promote(ds *datasetState, staging string, manifest *domain.IndexManifest) error {
	current := ds.currentIndexPath()
	if err := c.store.Promote(staging, current); err != nil {
		return err
	}

	reader, err := c.store.OpenReader(current)
	if err != nil {
		return fmt.Errorf("opening promoted index: %w", err)
	}

	ds.mu.Lock()
	old := ds.reader
	ds.reader = newReaderRef(reader)
	ds.state = domain.StateReady
	ds.fingerprint = manifest.Fingerprint
	report := manifest.Report
	ds.report = &report
	ds.failureReason = ""
	ds.mu.Unlock()

	if old != nil {
		old.retire()
	}
	return nil
}

// markFailed records a failed attempt. A previously promoted index
// stays open and queryable.
func (c *Coordinator) markFailed(ds *datasetState, err error) {
	var be *domain.BuildError
	reason := err.Error()
	if errors.As(err, &be) {
		reason = be.Err.Error()
	}

	ds.mu.Lock()
	ds.state = domain.StateFailed
	ds.failureReason = reason
	ds.mu.Unlock()

	logger.Error("Dataset %s: build failed: %v", ds.id, err)
}
