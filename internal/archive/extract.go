package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// rootMarkers identify the export root inside an extracted zip. Data
// exports usually place these at the top level.
var rootMarkers = []string{
	"Connections.csv",
	"Profile.csv",
	"messages.csv",
}

// Extract unpacks the export zip at zipPath into destDir, replacing
// any previous contents. Entries that would escape destDir are
// rejected.
func Extract(zipPath, destDir string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("opening archive zip: %w", err)
	}
	defer reader.Close()

	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("clearing extract dir: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return fmt.Errorf("creating extract dir: %w", err)
	}

	for _, entry := range reader.File {
		if err := extractEntry(entry, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(entry *zip.File, destDir string) error {
	target := filepath.Join(destDir, filepath.FromSlash(entry.Name))
	// Reject zip-slip paths.
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return fmt.Errorf("zip entry %q escapes extract dir: %w", entry.Name, os.ErrPermission)
	}

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o700)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("creating dir for %s: %w", entry.Name, err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("opening zip entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("extracting %s: %w", entry.Name, err)
	}
	return nil
}

// FindExportRoot locates the directory inside extractDir that holds
// the export files. Zips often wrap the export in a single top-level
// directory; descend into it when the markers are not at the top.
func FindExportRoot(extractDir string) string {
	for _, marker := range rootMarkers {
		if _, err := os.Stat(filepath.Join(extractDir, marker)); err == nil {
			return extractDir
		}
	}

	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return extractDir
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	if len(dirs) == 1 {
		return filepath.Join(extractDir, dirs[0])
	}
	return extractDir
}
