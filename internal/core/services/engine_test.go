package services

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkiv-labs/arkiv/internal/adapters/driven/embedding/tfidf"
	"github.com/arkiv-labs/arkiv/internal/adapters/driven/storage/memory"
	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
	"github.com/arkiv-labs/arkiv/internal/decoders"
)

func tfidfFactory(name string, state []byte) (driven.Embedder, error) {
	if name != tfidf.Name {
		return nil, fmt.Errorf("unknown embedder %q", name)
	}
	return tfidf.FromState(state)
}

func newTestEngine(t *testing.T) (*Engine, *Registry) {
	t.Helper()

	store := memory.NewStore()
	registry := NewRegistry(t.TempDir(), store)
	builder := NewIndexBuilder(decoders.NewDefaultRegistry(), store, newEmbedder)
	coordinator := NewCoordinator(NewChangeDetector(), builder, store, time.Minute)

	engine := NewEngine(registry, coordinator, NewRetriever(), NewSynthesizer(),
		NewInsights(), tfidfFactory, 0)
	return engine, registry
}

// importReady resolves the dataset, fills its archive dir and builds
// the index.
func importReady(t *testing.T, engine *Engine, registry *Registry, id string) {
	t.Helper()

	ds, err := registry.Resolve(id)
	require.NoError(t, err)
	writeSampleArchive(t, ds.archiveDir)

	status, err := engine.EnsureIndex(context.Background(), id, false)
	require.NoError(t, err)
	require.Equal(t, domain.StateReady, status.State)
}

func TestEngineAskIntent(t *testing.T) {
	engine, registry := newTestEngine(t)
	importReady(t, engine, registry, "work")

	answer, err := engine.Ask(context.Background(), "work", "How many connections do I have?", 0)
	require.NoError(t, err)
	assert.Equal(t, "You have 2 connections.", answer.Text)
}

func TestEngineAskRetrieval(t *testing.T) {
	engine, registry := newTestEngine(t)
	importReady(t, engine, registry, "work")

	answer, err := engine.Ask(context.Background(), "work", "anything about compilers?", 0)
	require.NoError(t, err)

	assert.Equal(t, "Here are the closest matches from your archive.", answer.Text)
	require.NotEmpty(t, answer.Citations)
	for _, c := range answer.Citations {
		assert.NotEmpty(t, c.SourceFile)
		assert.NotEmpty(t, c.RecordID)
	}
}

func TestEngineAskDuringFirstBuild(t *testing.T) {
	store := &gatedStore{
		Store:   memory.NewStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	registry := NewRegistry(t.TempDir(), store)
	builder := NewIndexBuilder(decoders.NewDefaultRegistry(), store, newEmbedder)
	coordinator := NewCoordinator(NewChangeDetector(), builder, store, time.Minute)
	engine := NewEngine(registry, coordinator, NewRetriever(), NewSynthesizer(),
		NewInsights(), tfidfFactory, 0)

	ds, err := registry.Resolve("work")
	require.NoError(t, err)
	writeSampleArchive(t, ds.archiveDir)

	done := make(chan error, 1)
	go func() {
		_, err := engine.EnsureIndex(context.Background(), "work", false)
		done <- err
	}()
	<-store.entered

	_, err = engine.Ask(context.Background(), "work", "How many connections do I have?", 0)
	assert.ErrorIs(t, err, domain.ErrBuildInProgress)

	store.release <- struct{}{}
	require.NoError(t, <-done)

	answer, err := engine.Ask(context.Background(), "work", "How many connections do I have?", 0)
	require.NoError(t, err)
	assert.Equal(t, "You have 2 connections.", answer.Text)
}

func TestEngineAskNoMatches(t *testing.T) {
	engine, registry := newTestEngine(t)
	importReady(t, engine, registry, "work")

	answer, err := engine.Ask(context.Background(), "work", "xyzzy plugh frobnicate", 3)
	require.NoError(t, err)
	assert.Equal(t, noMatchAnswer, answer.Text)
	assert.Empty(t, answer.Citations)
}

func TestEngineAskEmptyQuestion(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Ask(context.Background(), "work", "   ", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEngineAskBeforeIndexBuilt(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Ask(context.Background(), "work", "how many connections?", 0)
	assert.ErrorIs(t, err, domain.ErrIndexNotReady)
}

func TestEngineInvalidDatasetID(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Ask(context.Background(), "../escape", "question", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = engine.ImportArchive(context.Background(), "a/b", "export.zip")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEngineStatusAbsent(t *testing.T) {
	engine, _ := newTestEngine(t)

	status, err := engine.Status(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAbsent, status.State)
	assert.Empty(t, status.Fingerprint)
	assert.Nil(t, status.Report)
}

func TestEngineImportArchive(t *testing.T) {
	engine, registry := newTestEngine(t)

	// Exports wrap their files in a top-level directory.
	zipPath := filepath.Join(t.TempDir(), "export.zip")
	writeZip(t, zipPath, map[string]string{
		"Complete_Export/Connections.csv": "First Name,Last Name,Company,Position,Connected On\n" +
			"Ada,Lovelace,Analytical Engines,Engineer,06 Jan 2024\n",
		"Complete_Export/messages.csv": "FROM,TO,DATE,CONTENT\nAda,Me,2024-02-01,Hello\n",
	})

	require.NoError(t, engine.ImportArchive(context.Background(), "imported", zipPath))

	ds, err := registry.Resolve("imported")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(ds.archiveDir, "Connections.csv"))
	require.NoError(t, err)

	status, err := engine.EnsureIndex(context.Background(), "imported", false)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReady, status.State)
	assert.Equal(t, 2, status.Report.RecordCount)

	answer, err := engine.Ask(context.Background(), "imported", "connections at Analytical Engines?", 0)
	require.NoError(t, err)
	assert.Equal(t, "Here are your connections who work at Analytical Engines.", answer.Text)
}

func TestEngineImportReplacesPreviousArchive(t *testing.T) {
	engine, registry := newTestEngine(t)
	importReady(t, engine, registry, "work")

	zipPath := filepath.Join(t.TempDir(), "export.zip")
	writeZip(t, zipPath, map[string]string{
		"Connections.csv": "First Name,Last Name,Company,Position,Connected On\n" +
			"Alan,Turing,Bletchley,Cryptanalyst,10 Mar 2023\n",
	})
	require.NoError(t, engine.ImportArchive(context.Background(), "work", zipPath))

	ds, err := registry.Resolve("work")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(ds.archiveDir, "messages.csv"))
	assert.True(t, os.IsNotExist(err), "old archive files must be gone")

	status, err := engine.EnsureIndex(context.Background(), "work", false)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Report.RecordCount)
}

func TestEngineDeleteDataset(t *testing.T) {
	engine, registry := newTestEngine(t)
	importReady(t, engine, registry, "work")

	ds, err := registry.Resolve("work")
	require.NoError(t, err)

	require.NoError(t, engine.DeleteDataset(context.Background(), "work"))
	_, err = os.Stat(ds.archiveDir)
	assert.True(t, os.IsNotExist(err))

	// Idempotent.
	require.NoError(t, engine.DeleteDataset(context.Background(), "work"))

	_, err = engine.Ask(context.Background(), "work", "how many connections?", 0)
	assert.ErrorIs(t, err, domain.ErrIndexNotReady)
}

func TestEngineListDatasets(t *testing.T) {
	engine, registry := newTestEngine(t)

	_, err := registry.Resolve("beta")
	require.NoError(t, err)
	_, err = registry.Resolve("alpha")
	require.NoError(t, err)

	datasets, err := engine.ListDatasets(context.Background())
	require.NoError(t, err)
	require.Len(t, datasets, 2)
	assert.Equal(t, "alpha", datasets[0].ID)
	assert.Equal(t, "beta", datasets[1].ID)
}

func TestEngineStats(t *testing.T) {
	engine, registry := newTestEngine(t)

	_, err := engine.Stats(context.Background(), "work")
	assert.ErrorIs(t, err, domain.ErrIndexNotReady)

	importReady(t, engine, registry, "work")

	stats, err := engine.Stats(context.Background(), "work")
	require.NoError(t, err)
	require.NotEmpty(t, stats.TopCompanies)
	assert.Equal(t, "Analytical Engines", stats.TopCompanies[0].Label)
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}
