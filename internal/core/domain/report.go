package domain

import (
	"fmt"
	"time"
)

// ParseWarning is a non-fatal problem encountered while parsing one
// file or row of the archive. Warnings never abort a build.
type ParseWarning struct {
	// SourceFile is the archive-relative path of the affected file.
	SourceFile string

	// Row is the affected row, zero for whole-file problems.
	Row int

	// Message describes what went wrong.
	Message string
}

// String formats the warning for display.
func (w ParseWarning) String() string {
	if w.Row > 0 {
		return fmt.Sprintf("%s row %d: %s", w.SourceFile, w.Row, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.SourceFile, w.Message)
}

// BuildReport collects per-build statistics and parse warnings.
type BuildReport struct {
	// FileCount is the number of archive files considered.
	FileCount int

	// SkippedFiles is the number of files no decoder could handle.
	SkippedFiles int

	// RecordCount is the number of records produced.
	RecordCount int

	// Warnings lists the non-fatal parse problems.
	Warnings []ParseWarning

	// Duration is how long the build took.
	Duration time.Duration
}

// Warn appends a warning to the report.
func (r *BuildReport) Warn(sourceFile string, row int, format string, args ...any) {
	r.Warnings = append(r.Warnings, ParseWarning{
		SourceFile: sourceFile,
		Row:        row,
		Message:    fmt.Sprintf(format, args...),
	})
}
