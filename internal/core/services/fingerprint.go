package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/arkiv-labs/arkiv/internal/archive"
	"github.com/arkiv-labs/arkiv/internal/core/domain"
)

// contentHashLimit is the largest file whose content is hashed into
// the fingerprint. Above this, size and mtime alone must do; below it,
// a same-size same-mtime rewrite is still detected.
const contentHashLimit = 64 << 10

// ChangeDetector computes archive fingerprints without parsing any
// file. Two archives with identical indexable content produce the same
// fingerprint.
type ChangeDetector struct {
	walkOpts archive.WalkOptions
}

// NewChangeDetector creates a change detector.
func NewChangeDetector() *ChangeDetector {
	return &ChangeDetector{}
}

// Fingerprint digests the archive's file listing: sorted relative
// paths with size and mtime, plus a content hash for small files.
func (d *ChangeDetector) Fingerprint(archiveDir string) (domain.Fingerprint, error) {
	if _, err := os.Stat(archiveDir); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("archive dir %s: %w", archiveDir, domain.ErrArchiveMissing)
		}
		return "", fmt.Errorf("stat archive dir: %w", err)
	}

	files, err := archive.Walk(archiveDir, d.walkOpts)
	if err != nil {
		return "", fmt.Errorf("walking archive: %w", err)
	}

	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s\x00%d\x00%d\x00", f.Path, f.Size, f.ModTime.Unix())
		if f.Size <= contentHashLimit {
			content, err := archive.ReadFile(archiveDir, f.Path)
			if err != nil {
				return "", fmt.Errorf("reading %s: %w", f.Path, err)
			}
			sum := sha256.Sum256(content)
			h.Write(sum[:])
		}
	}

	return domain.Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// NeedsRebuild reports whether the archive differs from the
// fingerprint the current index was built from.
func (d *ChangeDetector) NeedsRebuild(current domain.Fingerprint, archiveDir string) (bool, domain.Fingerprint, error) {
	fp, err := d.Fingerprint(archiveDir)
	if err != nil {
		return false, "", err
	}
	return !current.Equal(fp), fp, nil
}
