// Package memory provides an in-memory index store used in tests and
// for small ephemeral datasets. Artifacts are keyed by path so the
// staging/promote lifecycle behaves like the on-disk store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.IndexStore = (*Store)(nil)

// artifact is one immutable in-memory index.
type artifact struct {
	records       []domain.Record
	byID          map[string]int
	embeddings    map[string][]float32
	manifest      *domain.IndexManifest
	embedderName  string
	embedderState []byte
}

// Store is an in-memory implementation of driven.IndexStore.
type Store struct {
	mu        sync.RWMutex
	artifacts map[string]*artifact
}

// NewStore creates a new in-memory index store.
func NewStore() *Store {
	return &Store{artifacts: make(map[string]*artifact)}
}

// OpenWriter creates a new, empty index artifact at path.
func (s *Store) OpenWriter(path string) (driven.IndexWriter, error) {
	return &writer{
		store: s,
		path:  path,
		art: &artifact{
			byID:       make(map[string]int),
			embeddings: make(map[string][]float32),
		},
	}, nil
}

// OpenReader opens an existing index artifact at path.
func (s *Store) OpenReader(path string) (driven.IndexReader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	art, ok := s.artifacts[path]
	if !ok {
		return nil, fmt.Errorf("index artifact %s: %w", path, domain.ErrNotFound)
	}
	return &reader{art: art}, nil
}

// Promote moves the staging artifact to the current path.
func (s *Store) Promote(staging, current string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	art, ok := s.artifacts[staging]
	if !ok {
		return fmt.Errorf("staging artifact %s: %w", staging, domain.ErrNotFound)
	}
	delete(s.artifacts, staging)
	s.artifacts[current] = art
	return nil
}

// writer implements driven.IndexWriter. The artifact becomes visible
// to readers only when Close publishes it.
type writer struct {
	store *Store
	path  string
	art   *artifact
}

var _ driven.IndexWriter = (*writer)(nil)

// AddRecord stores a record with its optional embedding.
func (w *writer) AddRecord(_ context.Context, rec domain.Record, embedding []float32) error {
	w.art.byID[rec.ID] = len(w.art.records)
	w.art.records = append(w.art.records, rec)
	if len(embedding) > 0 {
		w.art.embeddings[rec.ID] = embedding
	}
	return nil
}

// SetEmbedderState persists the embedder's serialized state.
func (w *writer) SetEmbedderState(_ context.Context, name string, state []byte) error {
	w.art.embedderName = name
	w.art.embedderState = state
	return nil
}

// SetManifest persists the index manifest.
func (w *writer) SetManifest(_ context.Context, m domain.IndexManifest) error {
	w.art.manifest = &m
	return nil
}

// Close publishes the artifact at its path.
func (w *writer) Close() error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.artifacts[w.path] = w.art
	return nil
}

// reader implements driven.IndexReader over an immutable artifact.
type reader struct {
	art *artifact
}

var _ driven.IndexReader = (*reader)(nil)

// Manifest returns the index manifest.
func (r *reader) Manifest(_ context.Context) (*domain.IndexManifest, error) {
	if r.art.manifest == nil {
		return nil, fmt.Errorf("index manifest: %w", domain.ErrNotFound)
	}
	m := *r.art.manifest
	return &m, nil
}

// GetRecord retrieves a record by ID.
func (r *reader) GetRecord(_ context.Context, id string) (*domain.Record, error) {
	idx, ok := r.art.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	rec := r.art.records[idx]
	return &rec, nil
}

// ListByKind returns all records of a kind, ordered by source file
// then row.
func (r *reader) ListByKind(_ context.Context, kind domain.RecordKind) ([]domain.Record, error) {
	var out []domain.Record
	for _, rec := range r.art.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceFile != out[j].SourceFile {
			return out[i].SourceFile < out[j].SourceFile
		}
		return out[i].Row < out[j].Row
	})
	return out, nil
}

// ListBySource returns all records from one source file, ordered by
// row.
func (r *reader) ListBySource(_ context.Context, sourceFile string) ([]domain.Record, error) {
	var out []domain.Record
	for _, rec := range r.art.records {
		if rec.SourceFile == sourceFile {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out, nil
}

// CountBySource returns record counts per source file.
func (r *reader) CountBySource(_ context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, rec := range r.art.records {
		counts[rec.SourceFile]++
	}
	return counts, nil
}

// SearchKeyword scores records by the number of query terms appearing
// in the title or body.
func (r *reader) SearchKeyword(_ context.Context, terms []string, limit int) ([]driven.KeywordHit, error) {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowered = append(lowered, t)
		}
	}
	if len(lowered) == 0 {
		return nil, nil
	}

	var hits []driven.KeywordHit
	for _, rec := range r.art.records {
		haystack := strings.ToLower(rec.Title + "\n" + rec.Text)
		matched := 0
		for _, term := range lowered {
			if strings.Contains(haystack, term) {
				matched++
			}
		}
		if matched > 0 {
			hits = append(hits, driven.KeywordHit{RecordID: rec.ID, Score: float64(matched)})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].RecordID < hits[j].RecordID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SearchVector finds the k nearest embeddings by dot product.
func (r *reader) SearchVector(_ context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}

	var hits []driven.VectorHit
	for id, vec := range r.art.embeddings {
		if len(vec) != len(query) {
			continue
		}
		var dot float64
		for i := range query {
			dot += float64(query[i]) * float64(vec[i])
		}
		if dot > 0 {
			hits = append(hits, driven.VectorHit{RecordID: id, Similarity: dot})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].RecordID < hits[j].RecordID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// EmbedderState returns the embedder name and state stored at build
// time.
func (r *reader) EmbedderState(_ context.Context) (string, []byte, error) {
	return r.art.embedderName, r.art.embedderState, nil
}

// Close is a no-op for the in-memory reader.
func (r *reader) Close() error {
	return nil
}
