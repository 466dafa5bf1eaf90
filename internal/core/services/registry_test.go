package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkiv-labs/arkiv/internal/adapters/driven/storage/memory"
	"github.com/arkiv-labs/arkiv/internal/adapters/driven/storage/sqlite"
	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/decoders"
)

func TestResolveCreatesDirectories(t *testing.T) {
	root := t.TempDir()
	registry := NewRegistry(root, memory.NewStore())

	ds, err := registry.Resolve("work")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "archives", "work"), ds.archiveDir)
	assert.Equal(t, filepath.Join(root, "index", "work"), ds.indexDir)
	assert.Equal(t, domain.StateAbsent, ds.status().State)
	assert.DirExists(t, ds.archiveDir)
	assert.DirExists(t, ds.indexDir)

	// Same state instance on repeat resolution.
	again, err := registry.Resolve("work")
	require.NoError(t, err)
	assert.Same(t, ds, again)
}

func TestResolveRejectsInvalidIDs(t *testing.T) {
	registry := NewRegistry(t.TempDir(), memory.NewStore())

	for _, id := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := registry.Resolve(id)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "id %q", id)
	}
}

func TestResolveReopensPromotedIndexAfterRestart(t *testing.T) {
	root := t.TempDir()
	store := sqlite.NewStore()
	detector := NewChangeDetector()

	// First process: build and promote an index.
	first := NewRegistry(root, store)
	ds, err := first.Resolve("work")
	require.NoError(t, err)
	writeSampleArchive(t, ds.archiveDir)

	coord := NewCoordinator(detector, NewIndexBuilder(decoders.NewDefaultRegistry(), store, newEmbedder), store, time.Minute)
	status, err := coord.Ensure(context.Background(), ds, false)
	require.NoError(t, err)
	require.Equal(t, domain.StateReady, status.State)

	// Leave a stale staging artifact behind, as a crash would.
	stale := filepath.Join(ds.indexDir, "staging-crashed.db")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0600))

	// Second process: a fresh registry over the same data root.
	second := NewRegistry(root, store)
	require.NoError(t, second.Restore())

	restored, err := second.Resolve("work")
	require.NoError(t, err)
	st := restored.status()
	assert.Equal(t, domain.StateReady, st.State)
	assert.Equal(t, status.Fingerprint, st.Fingerprint)
	require.NotNil(t, st.Report)
	assert.Equal(t, 4, st.Report.RecordCount)

	reader := restored.currentReader()
	require.NotNil(t, reader)
	conns, err := reader.ListByKind(context.Background(), domain.KindConnection)
	require.NoError(t, err)
	assert.Len(t, conns, 2)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale staging artifact should be removed")
}

func TestDeleteRemovesEverything(t *testing.T) {
	root := t.TempDir()
	registry := NewRegistry(root, memory.NewStore())

	ds, err := registry.Resolve("work")
	require.NoError(t, err)
	writeArchiveFile(t, ds.archiveDir, "Connections.csv", "First Name\nAda\n")

	require.NoError(t, registry.Delete(context.Background(), "work"))
	_, err = os.Stat(ds.archiveDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(ds.indexDir)
	assert.True(t, os.IsNotExist(err))

	// Deleting again is a no-op.
	require.NoError(t, registry.Delete(context.Background(), "work"))
	assert.Empty(t, registry.ListActive())
}

func TestListActiveSorted(t *testing.T) {
	registry := NewRegistry(t.TempDir(), memory.NewStore())

	for _, id := range []string{"zeta", "alpha", "mid"} {
		_, err := registry.Resolve(id)
		require.NoError(t, err)
	}

	datasets := registry.ListActive()
	require.Len(t, datasets, 3)
	assert.Equal(t, "alpha", datasets[0].ID)
	assert.Equal(t, "mid", datasets[1].ID)
	assert.Equal(t, "zeta", datasets[2].ID)
}

func TestRestoreScansDataRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "archives", "old"), 0700))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "index", "other"), 0700))

	registry := NewRegistry(root, memory.NewStore())
	require.NoError(t, registry.Restore())

	datasets := registry.ListActive()
	require.Len(t, datasets, 2)
	assert.Equal(t, "old", datasets[0].ID)
	assert.Equal(t, "other", datasets[1].ID)
}
