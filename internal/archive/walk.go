// Package archive handles extracted export archives on disk: locating
// the export root inside an uploaded zip, and walking the file set in
// a deterministic order.
package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// FileInfo describes one file of an extracted archive.
type FileInfo struct {
	// Path is the slash-separated path relative to the export root.
	Path string

	// Size is the file size in bytes.
	Size int64

	// ModTime is the file's modification time.
	ModTime time.Time
}

// WalkOptions filters the files returned by Walk.
type WalkOptions struct {
	// Include restricts the walk to paths matching any of these
	// doublestar patterns. Empty means include everything.
	Include []string

	// Exclude drops paths matching any of these doublestar patterns.
	Exclude []string
}

// Walk returns the archive's files sorted by path. Hidden files and
// directories are skipped. The ordering is stable so fingerprints and
// builds are deterministic regardless of filesystem iteration order.
func Walk(root string, opts WalkOptions) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		ok, err := matches(rel, opts)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileInfo{
			Path:    rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking archive %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// ReadFile reads one archive file's content by its relative path.
func ReadFile(root, relPath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
}

func matches(rel string, opts WalkOptions) (bool, error) {
	for _, pattern := range opts.Exclude {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
		if ok {
			return false, nil
		}
	}
	if len(opts.Include) == 0 {
		return true, nil
	}
	for _, pattern := range opts.Include {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("include pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
