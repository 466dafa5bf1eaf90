package decoders

import (
	"path"
	"strings"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
)

// KindForPath infers the record kind from an archive-relative path.
// Export archives use well-known file names per table; matching on the
// base name keeps the inference stable across archive layouts.
func KindForPath(relPath string) domain.RecordKind {
	lower := strings.ToLower(relPath)
	base := path.Base(lower)

	switch {
	case strings.HasPrefix(lower, "articles/"):
		return domain.KindArticle
	case strings.Contains(base, "connection"):
		return domain.KindConnection
	case strings.Contains(base, "message"):
		return domain.KindMessage
	case strings.Contains(base, "profile"):
		return domain.KindProfile
	case strings.Contains(base, "share") || strings.Contains(base, "post"):
		return domain.KindPost
	case strings.Contains(base, "event"):
		return domain.KindEvent
	case strings.Contains(base, "learning") || strings.Contains(base, "course"):
		return domain.KindLearning
	default:
		return domain.KindGeneric
	}
}
