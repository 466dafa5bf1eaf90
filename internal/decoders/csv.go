package decoders

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
)

// Ensure CSV implements the interface.
var _ driven.Decoder = (*CSV)(nil)

// titleFields are checked in order when inferring a row title.
var titleFields = []string{
	"Content Title",
	"Title",
	"Job Title",
	"Company Name",
	"Company",
	"Organization",
	"School Name",
	"First Name",
	"Last Name",
	"Headline",
}

// timeFields are checked in order when extracting a row timestamp.
var timeFields = []string{
	"Connected On",
	"Date",
	"Created On",
	"Start Date",
}

// timeLayouts are the date formats seen across export tables.
var timeLayouts = []string{
	"2 Jan 2006",
	"2 January 2006",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"1/2/06, 3:04 PM",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// CSV decodes export CSV tables. Export CSVs have quirks: a UTF-8 BOM,
// optional "Notes:" preamble lines before the header, and ragged rows.
// Each data row becomes one record.
type CSV struct{}

// NewCSV creates a new CSV decoder.
func NewCSV() *CSV {
	return &CSV{}
}

// Extensions returns the file extensions this decoder handles.
func (d *CSV) Extensions() []string {
	return []string{".csv"}
}

// Priority returns the selection priority.
func (d *CSV) Priority() int {
	return 50
}

// Decode extracts one record per data row.
func (d *CSV) Decode(_ context.Context, file driven.ArchiveFile) (*driven.DecodeResult, error) {
	content := bytes.TrimPrefix(file.Content, []byte("\xef\xbb\xbf"))

	header, rest, err := splitHeader(content)
	if err != nil {
		return nil, err
	}

	headers, err := parseHeaderLine(header)
	if err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}

	result := &driven.DecodeResult{}
	kind := KindForPath(file.Path)

	reader := csv.NewReader(bytes.NewReader(rest))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	row := 0
	for {
		values, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			result.Warnings = append(result.Warnings, domain.ParseWarning{
				SourceFile: file.Path,
				Row:        row,
				Message:    fmt.Sprintf("malformed row: %v", err),
			})
			continue
		}

		fields := rowFields(headers, values)
		if len(fields) == 0 {
			continue // Blank row.
		}

		rec := domain.Record{
			ID:         fmt.Sprintf("%s#%d", file.Path, row),
			Kind:       kind,
			SourceFile: file.Path,
			Row:        row,
			Title:      inferTitle(fields, file.Path, row),
			Text:       rowText(headers, fields),
			Fields:     fields,
			Timestamp:  rowTimestamp(fields),
		}
		result.Records = append(result.Records, rec)
	}

	return result, nil
}

// splitHeader scans past blank lines and "Notes:" preamble blocks and
// returns the header line plus the remaining data bytes. Export CSVs
// sometimes carry multi-line notes before the real header; a notes
// block ends at the first blank line.
func splitHeader(content []byte) (string, []byte, error) {
	rest := content
	notesMode := false
	for len(rest) > 0 {
		line, tail := nextLine(rest)
		rest = tail

		stripped := strings.TrimSpace(line)
		switch {
		case stripped == "":
			notesMode = false
		case strings.HasPrefix(strings.ToLower(stripped), "notes:"):
			notesMode = true
		case notesMode:
			// Still inside the notes block.
		default:
			// Single-column tables have no comma in the header.
			return stripped, rest, nil
		}
	}
	return "", nil, errors.New("no header line found")
}

func nextLine(content []byte) (string, []byte) {
	idx := bytes.IndexByte(content, '\n')
	if idx < 0 {
		return string(content), nil
	}
	return strings.TrimSuffix(string(content[:idx]), "\r"), content[idx+1:]
}

func parseHeaderLine(header string) ([]string, error) {
	records, err := csv.NewReader(strings.NewReader(header)).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, errors.New("empty header")
	}
	return records[0], nil
}

// rowFields maps header names to cleaned cell values, dropping empty
// cells. Extra unnamed cells in ragged rows are ignored.
func rowFields(headers, values []string) map[string]string {
	fields := make(map[string]string)
	for i, header := range headers {
		if i >= len(values) {
			break
		}
		value := cleanText(values[i])
		if value == "" {
			continue
		}
		fields[header] = value
	}
	return fields
}

// rowText renders a row as "Header: value" lines in header order,
// matching how records read back in citations.
func rowText(headers []string, fields map[string]string) string {
	var parts []string
	for _, header := range headers {
		if value := fields[header]; value != "" {
			parts = append(parts, header+": "+value)
		}
	}
	return strings.Join(parts, "\n")
}

func inferTitle(fields map[string]string, sourceFile string, row int) string {
	first, last := fields["First Name"], fields["Last Name"]
	if first != "" && last != "" {
		return first + " " + last
	}
	for _, name := range titleFields {
		if value := fields[name]; value != "" {
			return value
		}
	}
	return fmt.Sprintf("%s row %d", sourceFile, row)
}

func rowTimestamp(fields map[string]string) *time.Time {
	for _, name := range timeFields {
		value := fields[name]
		if value == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, value); err == nil {
				return &ts
			}
		}
	}
	return nil
}

func cleanText(value string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(value), " ")
}
