package driven

import (
	"context"
	"time"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
)

// ArchiveFile is one file of an extracted export archive, handed to a
// decoder with its content already read. The archive is read-only once
// uploaded, so content and metadata are stable for the build.
type ArchiveFile struct {
	// Path is the slash-separated path relative to the export root.
	Path string

	// Size is the file size in bytes.
	Size int64

	// ModTime is the file's modification time.
	ModTime time.Time

	// Content is the raw file bytes.
	Content []byte
}

// DecodeResult is the output of decoding one archive file.
type DecodeResult struct {
	// Records are the normalised records extracted from the file.
	// May be empty for an empty file.
	Records []domain.Record

	// Warnings lists rows that were skipped as malformed.
	Warnings []domain.ParseWarning
}

// Decoder converts one kind of archive file into records.
// Each known file kind maps to a dedicated decoder; new export kinds
// are added by registering another decoder, not by touching the
// pipeline.
type Decoder interface {
	// Extensions returns the lowercase file extensions this decoder
	// handles, dot included (".csv").
	Extensions() []string

	// Priority returns the selection priority (higher = preferred)
	// when several decoders claim the same extension.
	Priority() int

	// Decode extracts records from the file. A file that cannot be
	// parsed at all returns an error; the caller records it as a
	// non-fatal per-file warning, never a build failure.
	Decode(ctx context.Context, file ArchiveFile) (*DecodeResult, error)
}

// DecoderRegistry dispatches archive files to decoders by extension.
type DecoderRegistry interface {
	// Decode runs the best matching decoder for the file.
	// Returns domain.ErrUnsupportedFile when no decoder claims it.
	Decode(ctx context.Context, file ArchiveFile) (*DecodeResult, error)

	// Register adds a decoder to the registry.
	Register(decoder Decoder)

	// SupportedExtensions returns all extensions that can be decoded.
	SupportedExtensions() []string
}
