// Package pathutil provides filesystem path helpers shared by config
// discovery and project-relative path reporting.
package pathutil

import (
	"os"
	"path/filepath"
)

// FindUp walks from startDir toward the filesystem root looking for a
// directory that contains any of the named entries (files or directories).
// It returns the first directory that matches. ok is false when the walk
// reaches the root without a match.
func FindUp(startDir string, names []string) (dir string, ok bool) {
	dir = filepath.Clean(startDir)
	for {
		for _, name := range names {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
