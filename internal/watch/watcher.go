// Package watch rebuilds dataset indexes when archive files change on
// disk. Bursts of filesystem events (an export being unpacked writes
// hundreds of files) are debounced into a single rebuild.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arkiv-labs/arkiv/internal/core/ports/driving"
	"github.com/arkiv-labs/arkiv/internal/logger"
)

// DefaultDebounce is how long the watcher waits after the last event
// before triggering a rebuild.
const DefaultDebounce = 2 * time.Second

// Watcher triggers index rebuilds for one dataset when its archive
// directory changes.
type Watcher struct {
	engine     driving.Engine
	datasetID  string
	archiveDir string
	debounce   time.Duration

	// rebuilt receives the result of each triggered rebuild.
	rebuilt chan error
}

// New creates a watcher for the dataset's archive directory. debounce
// <= 0 uses DefaultDebounce.
func New(engine driving.Engine, datasetID, archiveDir string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		engine:     engine,
		datasetID:  datasetID,
		archiveDir: archiveDir,
		debounce:   debounce,
		rebuilt:    make(chan error, 1),
	}
}

// Rebuilt reports the outcome of each triggered rebuild. Consuming it
// is optional.
func (w *Watcher) Rebuilt() <-chan error {
	return w.rebuilt
}

// Run watches until the context is cancelled. The archive directory
// and its subdirectories are watched; directories created later are
// added as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close() //nolint:errcheck

	if err := addRecursive(fw, w.archiveDir); err != nil {
		return err
	}
	logger.Info("Watching %s for changes", w.archiveDir)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				// New subdirectories need their own watch.
				addRecursive(fw, event.Name) //nolint:errcheck // plain files fail here
			}
			logger.Debug("Archive event: %s", event)

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error: %v", err)

		case <-fire:
			fire = nil
			w.trigger(ctx)
		}
	}
}

// trigger rebuilds the index once for the accumulated events.
func (w *Watcher) trigger(ctx context.Context) {
	logger.Info("Archive changed, rebuilding index for %s", w.datasetID)
	_, err := w.engine.EnsureIndex(ctx, w.datasetID, false)
	if err != nil {
		logger.Error("Rebuild after change failed: %v", err)
	}

	select {
	case w.rebuilt <- err:
	default:
	}
}

// addRecursive watches dir and every directory below it. Non-directory
// paths return an error from the WalkDir stat and are ignored by the
// caller.
func addRecursive(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}
