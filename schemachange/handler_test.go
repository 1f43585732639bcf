package schemachange

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydb/quarry/internal/fs"
	"github.com/quarrydb/quarry/model"
	"github.com/quarrydb/quarry/rowset"
	"github.com/quarrydb/quarry/schema"
	"github.com/quarrydb/quarry/tablet"
)

func srcSchema() *schema.Schema {
	return schema.New([]schema.Column{
		{Name: "k", Type: schema.TypeInt64, IsKey: true},
		{Name: "city", Type: schema.TypeString, Nullable: true},
		{Name: "pv", Type: schema.TypeInt64},
	}, model.KeysDuplicate)
}

// dstSchema drops pv, keeps k and city, and adds a nullable score
// column that the source cannot feed.
func dstSchema() *schema.Schema {
	return schema.New([]schema.Column{
		{Name: "k", Type: schema.TypeInt64, IsKey: true},
		{Name: "city", Type: schema.TypeString, Nullable: true},
		{Name: "score", Type: schema.TypeFloat64, Nullable: true},
	}, model.KeysDuplicate)
}

func buildSourceRowset(t *testing.T, dir string, rows []schema.Row) *rowset.Rowset {
	t.Helper()
	w := rowset.NewWriter()
	require.NoError(t, w.Init(rowset.WriterContext{
		RowsetID:    41,
		TabletID:    10,
		PartitionID: 2,
		SchemaHash:  100,
		TxnID:       77,
		LoadID:      "load-sc",
		Kind:        rowset.KindLoad,
		PathPrefix:  dir,
		Schema:      srcSchema(),
	}))
	require.NoError(t, w.FlushBatch(context.Background(), rows))
	rs, err := w.Build()
	require.NoError(t, err)
	return rs
}

func TestConvertProjectsByName(t *testing.T) {
	srcDir := t.TempDir()
	source := buildSourceRowset(t, srcDir, []schema.Row{
		{schema.Int64(1), schema.String("sfo"), schema.Int64(3)},
		{schema.Int64(2), schema.Null(), schema.Int64(9)},
	})

	target := tablet.New(11, 200, t.TempDir(), dstSchema())
	require.NoError(t, fs.Default.MkdirAll(target.PendingDir(), 0755))

	h := NewHandler()
	rs, err := h.Convert(context.Background(), source, srcSchema(), target, 42)
	require.NoError(t, err)

	assert.Equal(t, model.RowsetID(42), rs.ID())
	assert.Equal(t, model.TabletID(11), rs.TabletID())
	assert.Equal(t, int64(2), rs.RowCount())

	meta := rs.Meta()
	assert.Equal(t, rowset.KindSchemaChange, meta.Kind)
	assert.Equal(t, model.SchemaHash(200), meta.SchemaHash)
	assert.Equal(t, model.TxnID(77), meta.TxnID)
	assert.Equal(t, model.LoadID("load-sc"), meta.LoadID)

	for _, seg := range rs.Segments() {
		assert.True(t, strings.HasPrefix(seg.Path, target.PendingDir()))
	}

	got, err := rowset.ReadRows(fs.Default, rs, dstSchema())
	require.NoError(t, err)
	require.Len(t, got, 2)

	// k and city carry over; score has no source and is NULL.
	assert.Equal(t, schema.Int64(1), got[0][0])
	assert.Equal(t, schema.String("sfo"), got[0][1])
	assert.True(t, got[0][2].IsNull())
	assert.True(t, got[1][1].IsNull())
	assert.True(t, got[1][2].IsNull())
}

func TestConvertEmptyRowset(t *testing.T) {
	source := buildSourceRowset(t, t.TempDir(), nil)

	target := tablet.New(11, 200, t.TempDir(), dstSchema())
	require.NoError(t, fs.Default.MkdirAll(target.PendingDir(), 0755))

	h := NewHandler()
	rs, err := h.Convert(context.Background(), source, srcSchema(), target, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rs.RowCount())
	assert.Empty(t, rs.Segments())
}

func TestConvertWriteFailure(t *testing.T) {
	srcDir := t.TempDir()
	source := buildSourceRowset(t, srcDir, []schema.Row{
		{schema.Int64(1), schema.String("sfo"), schema.Int64(3)},
	})

	target := tablet.New(11, 200, t.TempDir(), dstSchema())
	require.NoError(t, fs.Default.MkdirAll(target.PendingDir(), 0755))

	faulty := fs.NewFaultyFS(fs.LocalFS{})
	faulty.AddRule(filepath.Base(target.PendingDir()), fs.Fault{FailOnWrite: true})

	h := NewHandler(WithFS(faulty))
	_, err := h.Convert(context.Background(), source, srcSchema(), target, 42)
	require.Error(t, err)

	// Nothing from the failed conversion reaches the pending dir.
	entries, rerr := fs.Default.ReadDir(target.PendingDir())
	require.NoError(t, rerr)
	assert.Empty(t, entries)
}
