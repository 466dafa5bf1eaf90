package decoders

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.DecoderRegistry = (*Registry)(nil)

// Registry selects the appropriate decoder for an archive file.
// It maintains decoders per extension and dispatches to the highest
// priority match.
type Registry struct {
	byExtension map[string][]driven.Decoder
}

// NewRegistry creates an empty decoder registry.
func NewRegistry() *Registry {
	return &Registry{
		byExtension: make(map[string][]driven.Decoder),
	}
}

// NewDefaultRegistry creates a registry with the built-in decoders.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewCSV())
	r.Register(NewHTML())
	r.Register(NewPlaintext())
	return r
}

// Register adds a decoder to the registry.
func (r *Registry) Register(decoder driven.Decoder) {
	for _, ext := range decoder.Extensions() {
		ext = strings.ToLower(ext)
		r.byExtension[ext] = append(r.byExtension[ext], decoder)
		// Highest priority first.
		sort.SliceStable(r.byExtension[ext], func(i, j int) bool {
			return r.byExtension[ext][i].Priority() > r.byExtension[ext][j].Priority()
		})
	}
}

// Decode runs the best matching decoder for the file.
func (r *Registry) Decode(ctx context.Context, file driven.ArchiveFile) (*driven.DecodeResult, error) {
	ext := strings.ToLower(path.Ext(file.Path))
	candidates := r.byExtension[ext]
	if len(candidates) == 0 {
		return nil, domain.ErrUnsupportedFile
	}
	return candidates[0].Decode(ctx, file)
}

// SupportedExtensions returns all extensions that can be decoded.
func (r *Registry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.byExtension))
	for ext := range r.byExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
