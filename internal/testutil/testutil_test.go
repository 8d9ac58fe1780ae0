package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot()
	require.NoError(t, err)
	assert.True(t, FileExists(filepath.Join(root, "go.mod")))
}

func TestFileHelpers(t *testing.T) {
	dir := CreateTempDir(t)
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(filepath.Join(dir, "missing")))

	path := WriteFile(t, filepath.Join(dir, "a", "b", "c.txt"), []byte("x"))
	assert.True(t, FileExists(path))
	assert.False(t, DirExists(path))
	assert.True(t, DirExists(filepath.Join(dir, "a", "b")))
}
