package search

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// globMatch matches a project-relative path against a doublestar pattern. A
// bare pattern with no directory component also matches by base name, so
// "*.py" finds files in subdirectories.
func globMatch(pattern, path string) bool {
	if ok, err := doublestar.Match(pattern, path); err == nil && ok {
		return true
	}
	ok, err := doublestar.Match(pattern, filepath.Base(path))
	return err == nil && ok
}
