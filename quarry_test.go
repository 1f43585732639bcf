package quarry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydb/quarry"
	"github.com/quarrydb/quarry/model"
	"github.com/quarrydb/quarry/resource"
	"github.com/quarrydb/quarry/schema"
	"github.com/quarrydb/quarry/tablet"
	"github.com/quarrydb/quarry/writer"
)

func openDB(t *testing.T, opts ...quarry.Option) *quarry.DB {
	t.Helper()
	db, err := quarry.Open(t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func pageSchema() *schema.Schema {
	return schema.New([]schema.Column{
		{Name: "k", Type: schema.TypeInt64, IsKey: true},
		{Name: "pv", Type: schema.TypeInt64, Aggregation: schema.AggSum},
	}, model.KeysAggregate)
}

func TestCreateTablet(t *testing.T) {
	db := openDB(t)

	tab, err := db.CreateTablet(10, 5, pageSchema())
	require.NoError(t, err)
	assert.Equal(t, "10.5", tab.FullName())

	got, err := db.Tablet(10, 5)
	require.NoError(t, err)
	assert.Same(t, tab, got)

	_, err = db.CreateTablet(10, 5, pageSchema())
	assert.ErrorIs(t, err, tablet.ErrExists)

	_, err = db.Tablet(10, 9)
	assert.ErrorIs(t, err, tablet.ErrNotFound)
}

func TestLoadRoundTrip(t *testing.T) {
	db := openDB(t)
	_, err := db.CreateTablet(10, 5, pageSchema())
	require.NoError(t, err)

	ctx := context.Background()
	w := db.NewWriter(writer.WriteRequest{
		TabletID:    10,
		SchemaHash:  5,
		PartitionID: 2,
		TxnID:       77,
		LoadID:      "load-1",
		Shape:       schema.RowShape{{Name: "k"}, {Name: "pv"}},
	})
	defer w.Release(ctx)

	// Aggregate key model folds equal keys at flush time.
	require.NoError(t, w.Write(ctx, schema.Row{schema.Int64(1), schema.Int64(3)}))
	require.NoError(t, w.Write(ctx, schema.Row{schema.Int64(1), schema.Int64(4)}))

	var out []model.TabletInfo
	require.NoError(t, w.Close(ctx, &out))
	require.Equal(t, []model.TabletInfo{{TabletID: 10, SchemaHash: 5}}, out)
}

func TestMemoryLimit(t *testing.T) {
	db := openDB(t, quarry.WithMemoryLimit(32))
	_, err := db.CreateTablet(10, 5, pageSchema())
	require.NoError(t, err)

	ctx := context.Background()
	w := db.NewWriter(writer.WriteRequest{
		TabletID:    10,
		SchemaHash:  5,
		PartitionID: 2,
		TxnID:       77,
		LoadID:      "load-1",
		Shape:       schema.RowShape{{Name: "k"}, {Name: "pv"}},
	})
	defer w.Release(ctx)

	// One row estimates past the 32-byte limit.
	err = w.Write(ctx, schema.Row{schema.Int64(1), schema.Int64(3)})
	assert.ErrorIs(t, err, resource.ErrMemoryExhausted)
}
