package decoders

import (
	"context"
	"html"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
)

// Ensure HTML implements the interface.
var _ driven.Decoder = (*HTML)(nil)

// Pre-compiled regular expressions for HTML parsing.
var (
	titleTag     = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptTag    = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag     = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	htmlComments = regexp.MustCompile(`(?s)<!--.*?-->`)
	allTags      = regexp.MustCompile(`<[^>]+>`)
)

// articleStamp matches the "2006-01-02 15:04:05" prefix article files
// carry in their names.
var articleStamp = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}) (\d{2}:\d{2}:\d{2})`)

// HTML decodes exported HTML pages (articles, rich profile sections)
// into one whole-file record with tags stripped.
type HTML struct{}

// NewHTML creates a new HTML decoder.
func NewHTML() *HTML {
	return &HTML{}
}

// Extensions returns the file extensions this decoder handles.
func (d *HTML) Extensions() []string {
	return []string{".html", ".htm"}
}

// Priority returns the selection priority.
func (d *HTML) Priority() int {
	return 50
}

// Decode extracts one record for the whole page.
func (d *HTML) Decode(_ context.Context, file driven.ArchiveFile) (*driven.DecodeResult, error) {
	raw := string(file.Content)
	text := stripHTML(raw)
	if text == "" {
		return &driven.DecodeResult{}, nil
	}

	title := pageTitle(raw, file.Path)
	kind := KindForPath(file.Path)
	if kind == domain.KindGeneric {
		kind = domain.KindPage
	}

	rec := domain.Record{
		ID:         file.Path + "#1",
		Kind:       kind,
		SourceFile: file.Path,
		Row:        1,
		Title:      title,
		Text:       text,
		Fields:     map[string]string{"text": text},
		Timestamp:  fileStamp(file.Path),
	}
	return &driven.DecodeResult{Records: []domain.Record{rec}}, nil
}

// stripHTML converts HTML to plain text.
func stripHTML(content string) string {
	content = scriptTag.ReplaceAllString(content, " ")
	content = styleTag.ReplaceAllString(content, " ")
	content = htmlComments.ReplaceAllString(content, " ")
	content = allTags.ReplaceAllString(content, " ")
	content = html.UnescapeString(content)
	return cleanText(content)
}

// pageTitle extracts a title from the <title> tag or the filename.
func pageTitle(content, relPath string) string {
	matches := titleTag.FindStringSubmatch(content)
	if len(matches) > 1 {
		if title := cleanText(html.UnescapeString(matches[1])); title != "" {
			return title
		}
	}
	return titleFromFilename(relPath)
}

// fileStamp parses the timestamp prefix article exports put in file
// names, e.g. "Articles/Articles/2025-03-01 09:15:00 My Post.html".
func fileStamp(relPath string) *time.Time {
	matches := articleStamp.FindStringSubmatch(path.Base(relPath))
	if matches == nil {
		return nil
	}
	ts, err := time.Parse("2006-01-02 15:04:05", matches[1]+" "+matches[2])
	if err != nil {
		return nil
	}
	return &ts
}

// titleFromFilename turns "Profile_Summary.html" into "Profile Summary".
func titleFromFilename(relPath string) string {
	base := path.Base(relPath)
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	return cleanText(base)
}
