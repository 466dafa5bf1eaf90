package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
)

func writeArtifact(t *testing.T, store *Store, path string) {
	t.Helper()

	w, err := store.OpenWriter(path)
	require.NoError(t, err)

	ctx := context.Background()
	records := []domain.Record{
		{ID: "a.csv#2", Kind: domain.KindConnection, SourceFile: "a.csv", Row: 2,
			Title: "Ada Lovelace", Text: "Company: Analytical Engines"},
		{ID: "a.csv#3", Kind: domain.KindConnection, SourceFile: "a.csv", Row: 3,
			Title: "Grace Hopper", Text: "Company: Navy"},
		{ID: "m.csv#2", Kind: domain.KindMessage, SourceFile: "m.csv", Row: 2,
			Title: "Hello", Text: "compiler conference invite"},
	}
	embeddings := [][]float32{{1, 0}, {0, 1}, {0.6, 0.8}}
	for i, rec := range records {
		require.NoError(t, w.AddRecord(ctx, rec, embeddings[i]))
	}
	require.NoError(t, w.SetManifest(ctx, domain.IndexManifest{BuildID: "b1", RecordCount: 3}))
	require.NoError(t, w.Close())
}

func TestReaderSeesOnlyClosedArtifacts(t *testing.T) {
	store := NewStore()

	w, err := store.OpenWriter("staging.db")
	require.NoError(t, err)
	require.NoError(t, w.AddRecord(context.Background(), domain.Record{ID: "x"}, nil))

	_, err = store.OpenReader("staging.db")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, w.Close())
	r, err := store.OpenReader("staging.db")
	require.NoError(t, err)
	defer r.Close()
}

func TestPromote(t *testing.T) {
	store := NewStore()
	writeArtifact(t, store, "staging.db")

	require.NoError(t, store.Promote("staging.db", "current.db"))

	_, err := store.OpenReader("staging.db")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	r, err := store.OpenReader("current.db")
	require.NoError(t, err)
	defer r.Close()

	m, err := r.Manifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, m.RecordCount)

	assert.Error(t, store.Promote("staging.db", "current.db"))
}

func TestLookups(t *testing.T) {
	store := NewStore()
	writeArtifact(t, store, "current.db")
	ctx := context.Background()

	r, err := store.OpenReader("current.db")
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.GetRecord(ctx, "a.csv#3")
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", rec.Title)

	_, err = r.GetRecord(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	conns, err := r.ListByKind(ctx, domain.KindConnection)
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, []int{2, 3}, []int{conns[0].Row, conns[1].Row})

	bySource, err := r.ListBySource(ctx, "m.csv")
	require.NoError(t, err)
	require.Len(t, bySource, 1)

	counts, err := r.CountBySource(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a.csv": 2, "m.csv": 1}, counts)
}

func TestSearchKeyword(t *testing.T) {
	store := NewStore()
	writeArtifact(t, store, "current.db")
	ctx := context.Background()

	r, err := store.OpenReader("current.db")
	require.NoError(t, err)
	defer r.Close()

	hits, err := r.SearchKeyword(ctx, []string{"compiler", "conference"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m.csv#2", hits[0].RecordID)
	assert.Equal(t, 2.0, hits[0].Score)

	hits, err = r.SearchKeyword(ctx, []string{"  ", ""}, 10)
	require.NoError(t, err)
	assert.Nil(t, hits)
}

func TestSearchVector(t *testing.T) {
	store := NewStore()
	writeArtifact(t, store, "current.db")
	ctx := context.Background()

	r, err := store.OpenReader("current.db")
	require.NoError(t, err)
	defer r.Close()

	hits, err := r.SearchVector(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a.csv#2", hits[0].RecordID)
	assert.Equal(t, "m.csv#2", hits[1].RecordID)
}
