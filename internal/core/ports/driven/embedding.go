package driven

// Embedder produces vector embeddings for text. Implementations are
// corpus-prepared: Prepare is called once per build with every record
// body, then Embed must be deterministic for the prepared vocabulary.
type Embedder interface {
	// Name identifies the embedder implementation.
	Name() string

	// Prepare builds internal state (vocabulary, term weights) from
	// the corpus. Must be called before Embed.
	Prepare(corpus []string) error

	// Embed computes the embedding for the given text.
	Embed(text string) ([]float32, error)

	// Dimension returns the dimensionality of produced vectors.
	Dimension() int

	// MarshalState serializes the prepared state so a reader can
	// reconstruct the embedder for query-time embedding.
	MarshalState() ([]byte, error)
}
