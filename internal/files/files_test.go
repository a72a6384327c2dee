package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0640))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestCopyFile_CreatesParents(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "nethackrc")
	dst := filepath.Join(dir, "userdata", "alice", "nethack", "nethackrc")
	writeFile(t, src, "OPTIONS=color\n")

	copied, err := CopyFile(src, dst, IgnoreExisting)
	require.NoError(t, err)
	assert.True(t, copied)
	assert.Equal(t, "OPTIONS=color\n", readFile(t, dst))
}

func TestCopyFile_IgnoreExistingKeepsCustomContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "default_rc")
	dst := filepath.Join(dir, "user_rc")
	writeFile(t, src, "default")
	writeFile(t, dst, "custom")

	for i := 0; i < 2; i++ {
		copied, err := CopyFile(src, dst, IgnoreExisting)
		require.NoError(t, err)
		assert.False(t, copied)
		assert.Equal(t, "custom", readFile(t, dst))
	}
}

func TestCopyFile_IgnoreExistingIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "default_rc")
	dst := filepath.Join(dir, "user_rc")
	writeFile(t, src, "default")

	_, err := CopyFile(src, dst, IgnoreExisting)
	require.NoError(t, err)
	once := readFile(t, dst)

	writeFile(t, src, "changed upstream")
	_, err = CopyFile(src, dst, IgnoreExisting)
	require.NoError(t, err)
	assert.Equal(t, once, readFile(t, dst))
}

func TestCopyFile_OverwriteExistingReflectsLatestSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "default_rc")
	dst := filepath.Join(dir, "user_rc")
	writeFile(t, src, "default")
	writeFile(t, dst, "custom content that is longer than the source")

	copied, err := CopyFile(src, dst, OverwriteExisting)
	require.NoError(t, err)
	assert.True(t, copied)
	assert.Equal(t, "default", readFile(t, dst))

	writeFile(t, src, "v2")
	_, err = CopyFile(src, dst, OverwriteExisting)
	require.NoError(t, err)
	assert.Equal(t, "v2", readFile(t, dst))
}

func TestCopyFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := CopyFile(filepath.Join(dir, "nope"), filepath.Join(dir, "dst"), OverwriteExisting)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "dst"))
}

func TestCopyFile_IgnoreExistingLeavesSymlinkAlone(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "default_rc")
	target := filepath.Join(dir, "elsewhere")
	dst := filepath.Join(dir, "user_rc")
	writeFile(t, src, "default")
	writeFile(t, target, "not yours")
	require.NoError(t, os.Symlink(target, dst))

	copied, err := CopyFile(src, dst, IgnoreExisting)
	require.NoError(t, err)
	assert.False(t, copied)
	assert.Equal(t, "not yours", readFile(t, target))

	// a dangling link counts as existing too
	require.NoError(t, os.Remove(target))
	copied, err = CopyFile(src, dst, IgnoreExisting)
	require.NoError(t, err)
	assert.False(t, copied)
	assert.NoFileExists(t, target)
}

func TestCopyFile_IgnoreExistingMissingSourceLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst")
	_, err := CopyFile(filepath.Join(dir, "nope"), dst, IgnoreExisting)
	require.Error(t, err)
	assert.NoFileExists(t, dst)

	writeFile(t, dst, "custom")
	copied, err := CopyFile(filepath.Join(dir, "nope"), dst, IgnoreExisting)
	require.NoError(t, err)
	assert.False(t, copied)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("ignore_existing")
	require.NoError(t, err)
	assert.Equal(t, IgnoreExisting, p)

	p, err = ParsePolicy("overwrite_existing")
	require.NoError(t, err)
	assert.Equal(t, OverwriteExisting, p)

	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}
