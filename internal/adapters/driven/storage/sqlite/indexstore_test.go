package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
)

func buildArtifact(t *testing.T, records []domain.Record, embeddings [][]float32) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "current.db")
	store := NewStore()

	w, err := store.OpenWriter(path)
	require.NoError(t, err)

	ctx := context.Background()
	for i, rec := range records {
		var emb []float32
		if embeddings != nil {
			emb = embeddings[i]
		}
		require.NoError(t, w.AddRecord(ctx, rec, emb))
	}

	dim := 0
	if len(embeddings) > 0 {
		dim = len(embeddings[0])
	}
	require.NoError(t, w.SetManifest(ctx, domain.IndexManifest{
		BuildID:      "build-1",
		Fingerprint:  "fp-1",
		BuiltAt:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		RecordCount:  len(records),
		EmbeddingDim: dim,
	}))
	require.NoError(t, w.Close())

	return path
}

func sampleRecords() []domain.Record {
	ts := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	return []domain.Record{
		{
			ID: "Connections.csv#2", Kind: domain.KindConnection,
			SourceFile: "Connections.csv", Row: 2,
			Title: "Ada Lovelace",
			Text:  "First Name: Ada\nLast Name: Lovelace\nCompany: Analytical Engines\nPosition: Engineer",
			Fields: map[string]string{
				"First Name": "Ada", "Last Name": "Lovelace",
				"Company": "Analytical Engines", "Position": "Engineer",
			},
			Timestamp: &ts,
		},
		{
			ID: "Connections.csv#3", Kind: domain.KindConnection,
			SourceFile: "Connections.csv", Row: 3,
			Title:  "Grace Hopper",
			Text:   "First Name: Grace\nLast Name: Hopper\nCompany: Navy\nPosition: Rear Admiral",
			Fields: map[string]string{"First Name": "Grace", "Last Name": "Hopper"},
		},
		{
			ID: "messages.csv#2", Kind: domain.KindMessage,
			SourceFile: "messages.csv", Row: 2,
			Title:  "Message from Ada",
			Text:   "Hello, are you attending the compiler conference next week?",
			Fields: map[string]string{"CONTENT": "Hello"},
		},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := buildArtifact(t, sampleRecords(), nil)
	ctx := context.Background()

	r, err := NewStore().OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	m, err := r.Manifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "build-1", m.BuildID)
	assert.Equal(t, domain.Fingerprint("fp-1"), m.Fingerprint)
	assert.Equal(t, 3, m.RecordCount)

	rec, err := r.GetRecord(ctx, "Connections.csv#2")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", rec.Title)
	assert.Equal(t, domain.KindConnection, rec.Kind)
	assert.Equal(t, "Analytical Engines", rec.Field("Company"))
	require.NotNil(t, rec.Timestamp)
	assert.Equal(t, 2023, rec.Timestamp.Year())

	_, err = r.GetRecord(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListAndCount(t *testing.T) {
	path := buildArtifact(t, sampleRecords(), nil)
	ctx := context.Background()

	r, err := NewStore().OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	conns, err := r.ListByKind(ctx, domain.KindConnection)
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, 2, conns[0].Row)
	assert.Equal(t, 3, conns[1].Row)

	msgs, err := r.ListBySource(ctx, "messages.csv")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.KindMessage, msgs[0].Kind)

	counts, err := r.CountBySource(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Connections.csv": 2, "messages.csv": 1}, counts)
}

func TestSearchKeyword(t *testing.T) {
	path := buildArtifact(t, sampleRecords(), nil)
	ctx := context.Background()

	r, err := NewStore().OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	hits, err := r.SearchKeyword(ctx, []string{"compiler", "conference"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "messages.csv#2", hits[0].RecordID)
	assert.Greater(t, hits[0].Score, 0.0)

	// OR semantics: one matching term is enough.
	hits, err = r.SearchKeyword(ctx, []string{"hopper", "nonexistentterm"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Connections.csv#3", hits[0].RecordID)

	hits, err = r.SearchKeyword(ctx, []string{"zzzznothing"}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Quotes in input must not break the match expression.
	_, err = r.SearchKeyword(ctx, []string{`ada"engineer`}, 10)
	assert.NoError(t, err)
}

func TestSearchKeywordNoTerms(t *testing.T) {
	path := buildArtifact(t, sampleRecords(), nil)

	r, err := NewStore().OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	hits, err := r.SearchKeyword(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Nil(t, hits)
}

func TestSearchVector(t *testing.T) {
	embeddings := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.6, 0.8, 0},
	}
	path := buildArtifact(t, sampleRecords(), embeddings)
	ctx := context.Background()

	r, err := NewStore().OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	hits, err := r.SearchVector(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Connections.csv#2", hits[0].RecordID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, "messages.csv#2", hits[1].RecordID)

	// Mismatched dimensionality returns nothing rather than failing.
	hits, err = r.SearchVector(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestEmbedderStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "current.db")
	store := NewStore()
	ctx := context.Background()

	w, err := store.OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.SetEmbedderState(ctx, "tfidf", []byte(`{"terms":[]}`)))
	require.NoError(t, w.SetManifest(ctx, domain.IndexManifest{BuildID: "b"}))
	require.NoError(t, w.Close())

	r, err := store.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	name, state, err := r.EmbedderState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tfidf", name)
	assert.JSONEq(t, `{"terms":[]}`, string(state))
}

func TestEmbedderStateAbsent(t *testing.T) {
	path := buildArtifact(t, nil, nil)

	r, err := NewStore().OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	name, state, err := r.EmbedderState(context.Background())
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Nil(t, state)
}

func TestOpenReaderMissing(t *testing.T) {
	_, err := NewStore().OpenReader(filepath.Join(t.TempDir(), "missing.db"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPromoteMovesArtifact(t *testing.T) {
	path := buildArtifact(t, sampleRecords(), nil)
	moved := filepath.Join(filepath.Dir(path), "promoted.db")

	store := NewStore()
	require.NoError(t, store.Promote(path, moved))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	r, err := store.OpenReader(moved)
	require.NoError(t, err)
	defer r.Close()

	m, err := r.Manifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, m.RecordCount)
}
