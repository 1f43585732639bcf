package tablet

import (
	"path/filepath"
	"testing"

	"github.com/quarrydb/quarry/model"
	"github.com/quarrydb/quarry/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTablet(t *testing.T, id model.TabletID, hash model.SchemaHash) *Tablet {
	t.Helper()
	sch := schema.New([]schema.Column{
		{Name: "k", Type: schema.TypeInt64, IsKey: true},
		{Name: "v", Type: schema.TypeString},
	}, model.KeysDuplicate)
	return New(id, hash, t.TempDir(), sch)
}

func TestTabletPaths(t *testing.T) {
	tab := newTestTablet(t, 10, 5)

	assert.Equal(t, filepath.Join(tab.DataDir(), "tablet_10_5"), tab.Path())
	assert.Equal(t, filepath.Join(tab.Path(), "pending"), tab.PendingDir())
	assert.Equal(t, "10.5", tab.FullName())
}

func TestSchemaChangeTarget(t *testing.T) {
	tab := newTestTablet(t, 10, 5)

	_, _, ok := tab.SchemaChangeTarget()
	assert.False(t, ok)

	tab.SetSchemaChange(&SchemaChangeRequest{NewTabletID: 11, NewSchemaHash: 6})
	id, hash, ok := tab.SchemaChangeTarget()
	require.True(t, ok)
	assert.Equal(t, model.TabletID(11), id)
	assert.Equal(t, model.SchemaHash(6), hash)

	tab.SetSchemaChange(nil)
	_, _, ok = tab.SchemaChangeTarget()
	assert.False(t, ok)
}

func TestManagerLookup(t *testing.T) {
	m := NewManager()
	tab := newTestTablet(t, 10, 5)
	require.NoError(t, m.Add(tab))

	got, err := m.Get(10, 5)
	require.NoError(t, err)
	assert.Same(t, tab, got)

	_, err = m.Get(10, 6)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(99, 5)
	require.ErrorIs(t, err, ErrNotFound)

	err = m.Add(newTestTablet(t, 10, 5))
	require.ErrorIs(t, err, ErrExists)
}
