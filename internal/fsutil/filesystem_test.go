package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystem_WriteRenameRead(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	fsys := OSFileSystem{}

	tmp := filepath.Join(dir, "list.json.tmp")
	dst := filepath.Join(dir, "list.json")
	require.NoError(t, fsys.WriteFile(tmp, []byte(`[]`), 0o644))
	require.NoError(t, fsys.Rename(tmp, dst))

	data, err := fsys.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	_, err = fsys.Stat(tmp)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	names, err := fsys.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{dst}, names)
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	t.Parallel()
	mfs := NewMemoryFileSystem()

	require.NoError(t, mfs.WriteFile("/data/a.json", []byte("hello"), 0o644))
	data, err := mfs.ReadFile("/data/a.json")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// Returned slices are copies.
	data[0] = 'j'
	again, _ := mfs.ReadFile("/data/a.json")
	assert.Equal(t, "hello", string(again))

	_, err = mfs.ReadFile("/data/missing.json")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMemoryFileSystem_Rename(t *testing.T) {
	t.Parallel()
	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/d/x.tmp", []byte("new"), 0o644))
	require.NoError(t, mfs.WriteFile("/d/x", []byte("old"), 0o644))

	require.NoError(t, mfs.Rename("/d/x.tmp", "/d/x"))
	data, err := mfs.ReadFile("/d/x")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	err = mfs.Rename("/d/x.tmp", "/d/y")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMemoryFileSystem_DirsAndRemove(t *testing.T) {
	t.Parallel()
	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("/a/b", 0o755))

	info, err := mfs.Stat("/a")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, mfs.WriteFile("/a/b/f", []byte("x"), 0o600))
	info, err = mfs.Stat("/a/b/f")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Size())
	assert.False(t, info.IsDir())

	assert.Error(t, mfs.Remove("/a/b"), "non-empty directory")
	require.NoError(t, mfs.Remove("/a/b/f"))
	require.NoError(t, mfs.Remove("/a/b"))
	assert.True(t, errors.Is(mfs.Remove("/a/b"), fs.ErrNotExist))
}

func TestMemoryFileSystem_Glob(t *testing.T) {
	t.Parallel()
	mfs := NewMemoryFileSystem()
	for _, n := range []string{"/s/b.json", "/s/a.json", "/s/c.tmp"} {
		require.NoError(t, mfs.WriteFile(n, nil, 0o644))
	}
	got, err := mfs.Glob("/s/*.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"/s/a.json", "/s/b.json"}, got)

	_, err = mfs.Glob("[")
	assert.Error(t, err)
}
