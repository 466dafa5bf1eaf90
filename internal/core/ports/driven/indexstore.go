package driven

import (
	"context"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
)

// IndexStore opens index artifacts. A build writes into a detached
// staging location via OpenWriter; readers open the dataset's current
// artifact via OpenReader. The two never share a path until the
// coordinator promotes a finished staging artifact.
type IndexStore interface {
	// OpenWriter creates a new, empty index artifact at path.
	OpenWriter(path string) (IndexWriter, error)

	// OpenReader opens an existing index artifact at path.
	OpenReader(path string) (IndexReader, error)

	// Promote atomically replaces the artifact at current with the
	// finished artifact at staging. Readers already open on the old
	// artifact are unaffected.
	Promote(staging, current string) error
}

// IndexWriter is the write side of an index artifact. It is used by
// exactly one build and never observed by readers.
type IndexWriter interface {
	// AddRecord stores a record with its optional embedding.
	AddRecord(ctx context.Context, rec domain.Record, embedding []float32) error

	// SetEmbedderState persists the embedder's serialized state so
	// queries can be embedded against the same vocabulary.
	SetEmbedderState(ctx context.Context, name string, state []byte) error

	// SetManifest persists the index manifest.
	SetManifest(ctx context.Context, m domain.IndexManifest) error

	// Close finalises and releases the artifact.
	Close() error
}

// KeywordHit is a keyword (postings) search result.
type KeywordHit struct {
	// RecordID is the matched record.
	RecordID string

	// Score is the relevance score; higher is better.
	Score float64
}

// VectorHit is a similarity search result.
type VectorHit struct {
	// RecordID is the matched record.
	RecordID string

	// Similarity is the cosine similarity score (0-1).
	Similarity float64
}

// IndexReader is the read side of an index artifact. Implementations
// are safe for concurrent readers; the artifact is immutable.
type IndexReader interface {
	// Manifest returns the index manifest.
	Manifest(ctx context.Context) (*domain.IndexManifest, error)

	// GetRecord retrieves a record by ID.
	GetRecord(ctx context.Context, id string) (*domain.Record, error)

	// ListByKind returns all records of a kind, ordered by source
	// file then row.
	ListByKind(ctx context.Context, kind domain.RecordKind) ([]domain.Record, error)

	// ListBySource returns all records from one source file, ordered
	// by row.
	ListBySource(ctx context.Context, sourceFile string) ([]domain.Record, error)

	// CountBySource returns record counts per source file.
	CountBySource(ctx context.Context) (map[string]int, error)

	// SearchKeyword runs a keyword search over record titles and
	// bodies. The query is a plain list of terms.
	SearchKeyword(ctx context.Context, terms []string, limit int) ([]KeywordHit, error)

	// SearchVector finds the k records whose embeddings are nearest
	// to the query vector. Returns nil when the index has no vectors.
	SearchVector(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// EmbedderState returns the embedder name and serialized state
	// stored at build time, or ("", nil, nil) when none was stored.
	EmbedderState(ctx context.Context) (string, []byte, error)

	// Close releases resources.
	Close() error
}
