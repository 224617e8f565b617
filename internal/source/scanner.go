// Package source discovers Python files and extracts dataframe facts
// from their syntax trees.
package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"framecheck/internal/logging"
)

// skipDirs are directory names never worth scanning.
var skipDirs = map[string]bool{
	".git":               true,
	".hg":                true,
	".svn":               true,
	"__pycache__":        true,
	".mypy_cache":        true,
	".pytest_cache":      true,
	".ruff_cache":        true,
	".tox":               true,
	"venv":               true,
	".venv":              true,
	"env":                true,
	".env":               true,
	"node_modules":       true,
	".ipynb_checkpoints": true,
	".framecheck":        true,
}

// Scanner discovers Python source files under a root directory.
type Scanner struct {
	root     string
	excludes []string
}

// NewScanner creates a scanner rooted at root. excludes are doublestar
// glob patterns matched against root-relative paths.
func NewScanner(root string, excludes []string) *Scanner {
	return &Scanner{root: root, excludes: excludes}
}

// Scan walks the tree and returns the absolute paths of all Python files,
// sorted for deterministic output. targets narrows the walk to specific
// files or subdirectories; empty targets means the whole root.
func (s *Scanner) Scan(targets []string) ([]string, error) {
	if len(targets) == 0 {
		targets = []string{s.root}
	}

	seen := make(map[string]bool)
	var files []string

	for _, target := range targets {
		abs := target
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(s.root, target)
		}

		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", target, err)
		}

		if !info.IsDir() {
			if isPythonFile(abs) && !s.excluded(abs) && !seen[abs] {
				seen[abs] = true
				files = append(files, abs)
			}
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logging.ScanDebug("walk error at %s: %v", path, err)
				return nil
			}
			if d.IsDir() {
				if skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if !isPythonFile(path) {
				return nil
			}
			if s.excluded(path) {
				logging.ScanDebug("excluded by pattern: %s", path)
				return nil
			}
			if !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", target, err)
		}
	}

	sort.Strings(files)
	logging.Scan("discovered %d python files", len(files))
	return files, nil
}

// Rel returns the root-relative, slash-separated form of an absolute path.
// Falls back to the input when the path is outside the root.
func (s *Scanner) Rel(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (s *Scanner) excluded(path string) bool {
	rel := s.Rel(path)
	for _, pattern := range s.excludes {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			logging.ScanDebug("bad exclude pattern %q: %v", pattern, err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

func isPythonFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".py" || ext == ".pyw"
}
