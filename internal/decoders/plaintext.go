package decoders

import (
	"context"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
)

// Ensure Plaintext implements the interface.
var _ driven.Decoder = (*Plaintext)(nil)

// Plaintext decodes plain text files into one whole-file record.
// It is the fallback for text formats without structure.
type Plaintext struct{}

// NewPlaintext creates a new plain text decoder.
func NewPlaintext() *Plaintext {
	return &Plaintext{}
}

// Extensions returns the file extensions this decoder handles.
func (d *Plaintext) Extensions() []string {
	return []string{".txt"}
}

// Priority returns the selection priority.
func (d *Plaintext) Priority() int {
	return 5 // Fallback decoder.
}

// Decode extracts one record for the whole file.
func (d *Plaintext) Decode(_ context.Context, file driven.ArchiveFile) (*driven.DecodeResult, error) {
	text := cleanText(string(file.Content))
	if text == "" {
		return &driven.DecodeResult{}, nil
	}

	kind := KindForPath(file.Path)
	if kind == domain.KindGeneric {
		kind = domain.KindPage
	}

	rec := domain.Record{
		ID:         file.Path + "#1",
		Kind:       kind,
		SourceFile: file.Path,
		Row:        1,
		Title:      titleFromFilename(file.Path),
		Text:       text,
		Fields:     map[string]string{"text": text},
	}
	return &driven.DecodeResult{Records: []domain.Record{rec}}, nil
}
