package domain

import "time"

// Fingerprint is a digest of an archive's indexable content. Two
// fingerprints are equal iff the archives are content-identical for
// indexing purposes.
type Fingerprint string

// Equal reports whether two fingerprints denote identical content.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f != "" && f == other
}

// IndexManifest describes a built index artifact. An index is immutable
// after construction; a rebuild produces a new artifact and the
// dataset's current-index pointer is swapped atomically.
type IndexManifest struct {
	// BuildID uniquely identifies the build that produced the index.
	BuildID string

	// Fingerprint is the archive fingerprint the index was built from.
	Fingerprint Fingerprint

	// BuiltAt is when the build completed.
	BuiltAt time.Time

	// RecordCount is the number of records stored in the index.
	RecordCount int

	// EmbeddingDim is the dimensionality of stored embeddings,
	// zero when the index carries no vectors.
	EmbeddingDim int

	// Report is the build report collected while parsing.
	Report BuildReport
}
