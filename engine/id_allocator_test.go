package engine

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydb/quarry/internal/fs"
	"github.com/quarrydb/quarry/model"
)

func TestIDAllocatorMonotonic(t *testing.T) {
	dir := t.TempDir()
	a := NewIDAllocator(nil)

	var prev model.RowsetID
	for i := 0; i < 10; i++ {
		id, err := a.Next(dir)
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestIDAllocatorPerDirectory(t *testing.T) {
	a := NewIDAllocator(nil)
	dirA, dirB := t.TempDir(), t.TempDir()

	idA, err := a.Next(dirA)
	require.NoError(t, err)
	idB, err := a.Next(dirB)
	require.NoError(t, err)

	// Independent directories start from the same watermark.
	assert.Equal(t, idA, idB)
}

func TestIDAllocatorSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	a := NewIDAllocator(nil)
	var last model.RowsetID
	for i := 0; i < 5; i++ {
		id, err := a.Next(dir)
		require.NoError(t, err)
		last = id
	}

	// A fresh allocator skips the whole reserved batch.
	b := NewIDAllocator(nil)
	id, err := b.Next(dir)
	require.NoError(t, err)
	assert.Greater(t, id, last)
	assert.Greater(t, id, model.RowsetID(idBatchSize))
}

func TestIDAllocatorConcurrentUnique(t *testing.T) {
	dir := t.TempDir()
	a := NewIDAllocator(nil)

	const workers = 8
	const perWorker = 50

	var mu sync.Mutex
	seen := make(map[model.RowsetID]bool)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := a.Next(dir)
				assert.NoError(t, err)
				mu.Lock()
				assert.False(t, seen[id], "duplicate id %d", id)
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestIDAllocatorPersistFailure(t *testing.T) {
	dir := t.TempDir()
	faulty := fs.NewFaultyFS(fs.LocalFS{})
	faulty.AddRule(idFileName, fs.Fault{FailOnSync: true})

	a := NewIDAllocator(faulty)
	_, err := a.Next(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIDAllocation)

	// With the fault cleared allocation recovers.
	faulty.ClearRules()
	id, err := a.Next(dir)
	require.NoError(t, err)
	assert.Equal(t, model.RowsetID(1), id)
}

func TestIDAllocatorCorruptWatermark(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, fs.Default.MkdirAll(filepath.Join(dir, "meta"), 0755))
	require.NoError(t, fs.WriteFileAtomic(fs.Default,
		filepath.Join(dir, "meta", idFileName), []byte("not a number"), 0644))

	a := NewIDAllocator(nil)
	_, err := a.Next(dir)
	assert.ErrorIs(t, err, ErrIDAllocation)
}
