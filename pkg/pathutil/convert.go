// Package pathutil converts between the engine's canonical root-relative
// slash paths and the operating system paths users type.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToProjectRelative converts an absolute or cwd-relative path into the
// canonical root-relative slash form. Paths outside root are returned
// cleaned but absolute, signalling the caller to reject them.
func ToProjectRelative(root, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(path))
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// FromProjectRelative resolves a canonical relative path back to an OS
// path under root.
func FromProjectRelative(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}
