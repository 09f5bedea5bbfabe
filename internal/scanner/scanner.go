// Package scanner walks a project directory and yields candidate files
// for indexing. Scanning is best-effort: paths that cannot be read are
// skipped, and a missing root yields an empty result rather than an error.
package scanner

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// File describes a single indexing candidate.
type File struct {
	Path    string // absolute path
	RelPath string // path relative to the scanned root, stable across re-index
	Name    string // base name
	Ext     string // lowercased extension including the dot
}

// Config controls the filtering policy.
type Config struct {
	// Extensions is the case-insensitive allow-list (e.g. ".py", ".md").
	Extensions []string

	// ExcludedDirs are path segments rejected anywhere in the tree
	// (dependency caches, build artifacts, VCS directories).
	ExcludedDirs []string

	// MaxFileSize is the byte ceiling; larger files are skipped.
	MaxFileSize int64
}

// Scanner walks project directories applying the configured filters.
type Scanner struct {
	extensions  map[string]bool
	excluded    map[string]bool
	maxFileSize int64
	logger      *slog.Logger
}

// New creates a Scanner. A nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}

	extensions := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		extensions[strings.ToLower(ext)] = true
	}

	excluded := make(map[string]bool, len(cfg.ExcludedDirs))
	for _, dir := range cfg.ExcludedDirs {
		excluded[dir] = true
	}

	return &Scanner{
		extensions:  extensions,
		excluded:    excluded,
		maxFileSize: cfg.MaxFileSize,
		logger:      logger,
	}
}

// Scan walks root and returns every file passing the filter policy.
// Ordering is not guaranteed. A root that does not exist or is not a
// directory returns an empty slice and no error.
//
// WalkDir does not follow symlinks, so symlinked directory loops
// cannot cause infinite recursion.
func (s *Scanner) Scan(root string) []File {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		s.logger.Warn("resolving scan root", "root", root, "error", err)
		return nil
	}

	info, err := os.Stat(absRoot)
	if err != nil || !info.IsDir() {
		s.logger.Debug("scan root missing or not a directory", "root", absRoot)
		return nil
	}

	var files []File
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entry: skip it, keep walking.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == absRoot {
			return nil
		}

		name := d.Name()

		if d.IsDir() {
			if strings.HasPrefix(name, ".") || s.excluded[name] {
				return filepath.SkipDir
			}
			return nil
		}

		// The exclusion set applies to any path segment, files included.
		if strings.HasPrefix(name, ".") || s.excluded[name] {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(name))
		if !s.extensions[ext] {
			return nil
		}

		// Stat failure is a rejection, not an error.
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if fi.Size() > s.maxFileSize {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}

		files = append(files, File{
			Path:    path,
			RelPath: filepath.ToSlash(rel),
			Name:    name,
			Ext:     ext,
		})
		return nil
	})
	if walkErr != nil {
		s.logger.Warn("directory walk aborted", "root", absRoot, "error", walkErr)
	}

	return files
}
