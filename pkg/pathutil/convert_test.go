package pathutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundtrip(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "src", "auth", "login.py")

	rel := ToProjectRelative(root, abs)
	assert.Equal(t, "src/auth/login.py", rel)
	assert.Equal(t, abs, FromProjectRelative(root, rel))
}

func TestOutsideRootStaysAbsolute(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	got := ToProjectRelative(root, filepath.Join(other, "x.py"))
	assert.True(t, filepath.IsAbs(filepath.FromSlash(got)))
}
