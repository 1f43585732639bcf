package rowset

import (
	"context"
	"os"
	"testing"

	"github.com/quarrydb/quarry/internal/fs"
	"github.com/quarrydb/quarry/model"
	"github.com/quarrydb/quarry/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *schema.Schema {
	return schema.New([]schema.Column{
		{Name: "k", Type: schema.TypeInt64, IsKey: true},
		{Name: "city", Type: schema.TypeString, Nullable: true},
		{Name: "score", Type: schema.TypeFloat64},
		{Name: "active", Type: schema.TypeBool},
	}, model.KeysDuplicate)
}

func testContext(t *testing.T, sch *schema.Schema) WriterContext {
	t.Helper()
	return WriterContext{
		RowsetID:    7,
		TabletID:    10,
		PartitionID: 2,
		SchemaHash:  5,
		TxnID:       100,
		LoadID:      "load-1",
		PathPrefix:  t.TempDir(),
		Schema:      sch,
	}
}

func testRows(n int) []schema.Row {
	rows := make([]schema.Row, 0, n)
	for i := 0; i < n; i++ {
		city := schema.String("sf")
		if i%3 == 0 {
			city = schema.Null()
		}
		rows = append(rows, schema.Row{
			schema.Int64(int64(i)),
			city,
			schema.Float64(float64(i) / 2),
			schema.Bool(i%2 == 0),
		})
	}
	return rows
}

func TestWriterBuildRoundTrip(t *testing.T) {
	ctx := context.Background()
	sch := testSchema()
	w := NewWriter()
	require.NoError(t, w.Init(testContext(t, sch)))

	rows := testRows(100)
	require.NoError(t, w.FlushBatch(ctx, rows[:60]))
	require.NoError(t, w.FlushBatch(ctx, rows[60:]))

	rs, err := w.Build()
	require.NoError(t, err)
	assert.Equal(t, model.RowsetID(7), rs.ID())
	assert.Equal(t, int64(100), rs.RowCount())
	require.Len(t, rs.Segments(), 2)
	assert.Equal(t, StatePrepared, rs.Meta().State)

	got, err := ReadRows(fs.Default, rs, sch)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestWriterCompressionCodecs(t *testing.T) {
	ctx := context.Background()
	sch := testSchema()
	rows := testRows(500)

	for _, codec := range []CompressionType{CompressionNone, CompressionS2, CompressionLZ4} {
		t.Run(codec.String(), func(t *testing.T) {
			w := NewWriter(WithCompression(codec))
			require.NoError(t, w.Init(testContext(t, sch)))
			require.NoError(t, w.FlushBatch(ctx, rows))

			rs, err := w.Build()
			require.NoError(t, err)

			got, err := ReadRows(fs.Default, rs, sch)
			require.NoError(t, err)
			assert.Equal(t, rows, got)
		})
	}
}

func TestWriterEmptyBatchWritesNothing(t *testing.T) {
	sch := testSchema()
	w := NewWriter()
	require.NoError(t, w.Init(testContext(t, sch)))
	require.NoError(t, w.FlushBatch(context.Background(), nil))

	rs, err := w.Build()
	require.NoError(t, err)
	assert.Empty(t, rs.Segments())
	assert.Equal(t, int64(0), rs.RowCount())
}

func TestWriterFlushFailureLeavesNoSegment(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule(".dat", fs.Fault{FailOnWrite: true})

	sch := testSchema()
	w := NewWriter(WithFS(ffs))
	require.NoError(t, w.Init(testContext(t, sch)))

	err := w.FlushBatch(context.Background(), testRows(10))
	require.ErrorIs(t, err, fs.ErrInjected)
	assert.Equal(t, 0, w.SegmentCount())
}

func TestWriterMisusePanics(t *testing.T) {
	sch := testSchema()

	t.Run("flush before init", func(t *testing.T) {
		w := NewWriter()
		assert.Panics(t, func() { _ = w.FlushBatch(context.Background(), nil) })
	})

	t.Run("flush after build", func(t *testing.T) {
		w := NewWriter()
		require.NoError(t, w.Init(testContext(t, sch)))
		_, err := w.Build()
		require.NoError(t, err)
		assert.Panics(t, func() { _ = w.FlushBatch(context.Background(), nil) })
	})

	t.Run("double init", func(t *testing.T) {
		w := NewWriter()
		require.NoError(t, w.Init(testContext(t, sch)))
		assert.Panics(t, func() { _ = w.Init(testContext(t, sch)) })
	})

	t.Run("double build", func(t *testing.T) {
		w := NewWriter()
		require.NoError(t, w.Init(testContext(t, sch)))
		_, err := w.Build()
		require.NoError(t, err)
		assert.Panics(t, func() { _, _ = w.Build() })
	})
}

func TestReadSegmentDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	sch := testSchema()
	w := NewWriter()
	require.NoError(t, w.Init(testContext(t, sch)))
	require.NoError(t, w.FlushBatch(ctx, testRows(20)))

	rs, err := w.Build()
	require.NoError(t, err)
	path := rs.Segments()[0].Path

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = ReadSegment(fs.Default, path, sch)
	require.ErrorIs(t, err, ErrCorrupt)
}
