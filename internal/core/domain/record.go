package domain

import "time"

// RecordKind classifies a record extracted from an export archive.
type RecordKind string

// Known record kinds. New kinds can be introduced by decoders without
// changes elsewhere; unknown kinds are treated as KindGeneric.
const (
	KindProfile    RecordKind = "profile"
	KindConnection RecordKind = "connection"
	KindMessage    RecordKind = "message"
	KindPost       RecordKind = "post"
	KindEvent      RecordKind = "event"
	KindArticle    RecordKind = "article"
	KindLearning   RecordKind = "learning"
	KindPage       RecordKind = "page"
	KindGeneric    RecordKind = "generic"
)

// Record is a normalised unit extracted from an export archive.
// It is immutable once created.
type Record struct {
	// ID is the unique identifier for the record.
	ID string

	// Kind classifies the record (connection, message, post, ...).
	Kind RecordKind

	// SourceFile is the file within the archive the record came from,
	// as a slash-separated path relative to the export root.
	SourceFile string

	// Row is the 1-based position within the source file.
	// Zero for whole-file records.
	Row int

	// Title is a human-readable label for the record.
	Title string

	// Text is the indexable body.
	Text string

	// Fields holds the attribute mapping of the source row.
	// The schema varies by kind.
	Fields map[string]string

	// Timestamp is the record's own time, when one could be extracted.
	Timestamp *time.Time
}

// Field returns the named field value, or "" when absent.
func (r *Record) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// Retrieved pairs a record with its relevance score for a query.
type Retrieved struct {
	Record Record
	Score  float64
}
