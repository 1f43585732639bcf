package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "meta.json")

	require.NoError(t, WriteFileAtomic(Default, name, []byte("v1"), 0644))

	data, err := ReadFile(Default, name)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	// Overwrite keeps the file readable and removes the temp file.
	require.NoError(t, WriteFileAtomic(Default, name, []byte("v2"), 0644))
	data, err = ReadFile(Default, name)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	_, err = os.Stat(name + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFSWrite(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("segment", Fault{FailOnWrite: true})

	err := WriteFileAtomic(ffs, filepath.Join(dir, "segment_0.dat"), []byte("x"), 0644)
	require.ErrorIs(t, err, ErrInjected)

	// Unmatched files pass through.
	require.NoError(t, WriteFileAtomic(ffs, filepath.Join(dir, "other.dat"), []byte("x"), 0644))
}

func TestFaultyFSSync(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("meta", Fault{FailOnSync: true})

	err := WriteFileAtomic(ffs, filepath.Join(dir, "meta.json"), []byte("x"), 0644)
	require.ErrorIs(t, err, ErrInjected)

	ffs.ClearRules()
	require.NoError(t, WriteFileAtomic(ffs, filepath.Join(dir, "meta.json"), []byte("x"), 0644))
}
