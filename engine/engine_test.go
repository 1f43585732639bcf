package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydb/quarry/blobstore"
	"github.com/quarrydb/quarry/model"
	"github.com/quarrydb/quarry/rowset"
	"github.com/quarrydb/quarry/schema"
)

func testEngine(t *testing.T) *StorageEngine {
	t.Helper()
	eng, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func buildTestRowset(t *testing.T, eng *StorageEngine, id model.RowsetID) *rowset.Rowset {
	t.Helper()

	sch := schema.New([]schema.Column{
		{Name: "k", Type: schema.TypeInt64, IsKey: true},
		{Name: "v", Type: schema.TypeInt64},
	}, model.KeysDuplicate)

	prefix := filepath.Join(eng.RootDir(), "pending")
	require.NoError(t, eng.FS().MkdirAll(prefix, 0755))

	w := rowset.NewWriter()
	require.NoError(t, w.Init(rowset.WriterContext{
		RowsetID:   id,
		TabletID:   10,
		SchemaHash: 101,
		TxnID:      7,
		Kind:       rowset.KindLoad,
		PathPrefix: prefix,
		Schema:     sch,
	}))
	require.NoError(t, w.FlushBatch(context.Background(), []schema.Row{
		{schema.Int64(1), schema.Int64(100)},
		{schema.Int64(2), schema.Int64(200)},
	}))
	rs, err := w.Build()
	require.NoError(t, err)
	return rs
}

func TestOpenCreatesServices(t *testing.T) {
	eng := testEngine(t)

	assert.NotNil(t, eng.Tablets())
	assert.NotNil(t, eng.Txns())
	assert.NotNil(t, eng.IDs())
	assert.NotNil(t, eng.Meta())
	assert.NotNil(t, eng.Logger())

	_, err := os.Stat(eng.RootDir())
	require.NoError(t, err)

	require.NoError(t, eng.Close())
	require.NoError(t, eng.Close())
}

func TestAddUnusedRowset(t *testing.T) {
	eng := testEngine(t)

	eng.AddUnusedRowset(nil)
	assert.Empty(t, eng.UnusedRowsets())

	rs := buildTestRowset(t, eng, 1)
	eng.AddUnusedRowset(rs)

	got := eng.UnusedRowsets()
	require.Len(t, got, 1)
	assert.Equal(t, model.RowsetID(1), got[0].ID())
}

func TestSweepUnusedRowsets(t *testing.T) {
	eng := testEngine(t)
	rs := buildTestRowset(t, eng, 1)
	require.NoError(t, eng.Meta().Save(eng.RootDir(), rs.ID(), rs.Meta()))
	eng.AddUnusedRowset(rs)

	swept := eng.SweepUnusedRowsets(func(*rowset.Rowset) string { return eng.RootDir() })
	assert.Equal(t, 1, swept)
	assert.Empty(t, eng.UnusedRowsets())

	for _, seg := range rs.Segments() {
		_, err := os.Stat(seg.Path)
		assert.True(t, os.IsNotExist(err))
	}
	_, err := eng.Meta().Load(eng.RootDir(), rs.ID())
	assert.Error(t, err)
}

func TestSweepRetriesFailures(t *testing.T) {
	eng := testEngine(t)

	// A rowset whose segment path is a non-empty directory cannot be
	// removed, so the sweep must keep it for the next pass.
	blocked := filepath.Join(eng.RootDir(), "blocked")
	require.NoError(t, os.MkdirAll(filepath.Join(blocked, "child"), 0755))
	rs := rowset.FromMeta(rowset.Meta{
		RowsetID: 9,
		Segments: []rowset.SegmentMeta{{Name: "blocked", Path: blocked}},
	})
	eng.AddUnusedRowset(rs)

	swept := eng.SweepUnusedRowsets(func(*rowset.Rowset) string { return eng.RootDir() })
	assert.Equal(t, 0, swept)
	require.Len(t, eng.UnusedRowsets(), 1)

	require.NoError(t, os.RemoveAll(filepath.Join(blocked, "child")))
	swept = eng.SweepUnusedRowsets(func(*rowset.Rowset) string { return eng.RootDir() })
	assert.Equal(t, 1, swept)
	assert.Empty(t, eng.UnusedRowsets())
}

func TestSweepMissingFilesIsIdempotent(t *testing.T) {
	eng := testEngine(t)
	rs := rowset.FromMeta(rowset.Meta{
		RowsetID: 3,
		Segments: []rowset.SegmentMeta{{Name: "gone", Path: filepath.Join(eng.RootDir(), "gone.dat")}},
	})
	eng.AddUnusedRowset(rs)

	swept := eng.SweepUnusedRowsets(func(*rowset.Rowset) string { return eng.RootDir() })
	assert.Equal(t, 1, swept)
}

func TestOffloadRowset(t *testing.T) {
	eng := testEngine(t)
	rs := buildTestRowset(t, eng, 5)

	store := blobstore.NewMemoryStore()
	require.NoError(t, eng.OffloadRowset(context.Background(), rs, store))

	// One blob per segment plus the metadata document.
	assert.Equal(t, len(rs.Segments())+1, store.Len())

	names, err := store.List(context.Background(), "tablet_10_101/")
	require.NoError(t, err)
	assert.Contains(t, names, "tablet_10_101/rowset_5.json")
}
