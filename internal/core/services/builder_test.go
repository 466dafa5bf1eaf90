package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkiv-labs/arkiv/internal/adapters/driven/embedding/tfidf"
	"github.com/arkiv-labs/arkiv/internal/adapters/driven/storage/memory"
	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
	"github.com/arkiv-labs/arkiv/internal/decoders"
)

func newEmbedder() driven.Embedder { return tfidf.New() }

func writeSampleArchive(t *testing.T, dir string) {
	t.Helper()
	writeArchiveFile(t, dir, "Connections.csv",
		"Notes:\n\"When exporting your connection data, you may be missing data.\"\n\n"+
			"First Name,Last Name,Company,Position,Connected On\n"+
			"Ada,Lovelace,Analytical Engines,Engineer,06 Jan 2024\n"+
			"Grace,Hopper,Navy,Rear Admiral,15 Mar 2023\n")
	writeArchiveFile(t, dir, "messages.csv",
		"FROM,TO,DATE,CONTENT\nAda,Me,2024-02-01 10:00:00 UTC,See you at the compiler conference\n")
	writeArchiveFile(t, dir, "Articles/Articles/2024-01-05 10:30:00 MyPost.html",
		"<html><head><title>Thoughts on Compilers</title></head><body><p>Compilers are fun.</p></body></html>")
}

func TestBuildProducesCompleteArtifact(t *testing.T) {
	dir := t.TempDir()
	writeSampleArchive(t, dir)

	store := memory.NewStore()
	builder := NewIndexBuilder(decoders.NewDefaultRegistry(), store, newEmbedder)

	manifest, err := builder.Build(context.Background(), "work", "b1", dir, "staging.db", "fp-1")
	require.NoError(t, err)

	assert.Equal(t, "b1", manifest.BuildID)
	assert.Equal(t, domain.Fingerprint("fp-1"), manifest.Fingerprint)
	assert.Equal(t, 4, manifest.RecordCount)
	assert.Equal(t, 3, manifest.Report.FileCount)
	assert.Greater(t, manifest.EmbeddingDim, 0)
	assert.False(t, manifest.BuiltAt.IsZero())

	reader, err := store.OpenReader("staging.db")
	require.NoError(t, err)
	defer reader.Close()

	conns, err := reader.ListByKind(context.Background(), domain.KindConnection)
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, "Ada Lovelace", conns[0].Title)

	articles, err := reader.ListByKind(context.Background(), domain.KindArticle)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Thoughts on Compilers", articles[0].Title)

	name, state, err := reader.EmbedderState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tfidf", name)
	assert.NotEmpty(t, state)
}

func TestBuildSkipsUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	writeSampleArchive(t, dir)
	writeArchiveFile(t, dir, "media/photo.jpg", "\xff\xd8\xff")

	builder := NewIndexBuilder(decoders.NewDefaultRegistry(), memory.NewStore(), newEmbedder)
	manifest, err := builder.Build(context.Background(), "work", "b1", dir, "staging.db", "fp")
	require.NoError(t, err)

	assert.Equal(t, 1, manifest.Report.SkippedFiles)
	assert.Equal(t, 4, manifest.RecordCount)
}

func TestBuildDowngradesMalformedFilesToWarnings(t *testing.T) {
	dir := t.TempDir()
	writeSampleArchive(t, dir)
	// A csv with no header row fails to decode, but the build goes on.
	writeArchiveFile(t, dir, "Broken.csv", "\n\n\n")

	builder := NewIndexBuilder(decoders.NewDefaultRegistry(), memory.NewStore(), newEmbedder)
	manifest, err := builder.Build(context.Background(), "work", "b1", dir, "staging.db", "fp")
	require.NoError(t, err)

	assert.Equal(t, 4, manifest.RecordCount)
	require.NotEmpty(t, manifest.Report.Warnings)
	found := false
	for _, w := range manifest.Report.Warnings {
		if w.SourceFile == "Broken.csv" {
			found = true
		}
	}
	assert.True(t, found, "expected a warning for Broken.csv")
}

func TestBuildEmptyArchive(t *testing.T) {
	dir := t.TempDir()

	store := memory.NewStore()
	builder := NewIndexBuilder(decoders.NewDefaultRegistry(), store, newEmbedder)
	manifest, err := builder.Build(context.Background(), "work", "b1", dir, "staging.db", "fp")
	require.NoError(t, err)

	assert.Zero(t, manifest.RecordCount)
	assert.Zero(t, manifest.EmbeddingDim)
}

func TestBuildMissingArchiveDir(t *testing.T) {
	builder := NewIndexBuilder(decoders.NewDefaultRegistry(), memory.NewStore(), newEmbedder)
	_, err := builder.Build(context.Background(), "work", "b1",
		filepath.Join(t.TempDir(), "nope"), "staging.db", "fp")
	require.Error(t, err)

	var be *domain.BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "work", be.DatasetID)
}

func TestBuildCancelled(t *testing.T) {
	dir := t.TempDir()
	writeSampleArchive(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	builder := NewIndexBuilder(decoders.NewDefaultRegistry(), memory.NewStore(), newEmbedder)
	_, err := builder.Build(ctx, "work", "b1", dir, "staging.db", "fp")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
