package domain

// Citation points a claim in an answer back to a source record so the
// answer is auditable.
type Citation struct {
	// SourceFile is the archive-relative file the record came from.
	SourceFile string

	// RecordID identifies the cited record.
	RecordID string

	// Row is the record's position within the source file.
	Row int

	// Title is the record's human-readable label.
	Title string

	// Snippet is a short excerpt supporting the claim.
	Snippet string
}

// Answer is a synthesised response to a question. Every claim in Text
// is backed by at least one citation; an answer with no citations only
// ever states that no information was found.
type Answer struct {
	Text      string
	Citations []Citation
}
