// Package memtable buffers projected rows for one load until they are
// flushed into a rowset writer.
//
// A MemTable is bound to one (schema snapshot, projection, key model)
// triple. It is replaced wholesale after every flush rather than
// reused; the replacement shares the same binding so inserts before
// and after a flush behave identically.
package memtable

import (
	"context"
	"fmt"
	"sort"

	"github.com/quarrydb/quarry/model"
	"github.com/quarrydb/quarry/resource"
	"github.com/quarrydb/quarry/rowset"
	"github.com/quarrydb/quarry/schema"
)

// MemTable accumulates rows in memory. Not safe for concurrent use; one
// load drives one MemTable.
type MemTable struct {
	sch       *schema.Schema
	proj      schema.Projection
	keysModel model.KeysModel
	rc        *resource.Controller

	rows     []schema.Row
	memBytes int64
	flushed  bool
}

// New creates a MemTable bound to the given schema snapshot and
// projection. rc may be nil to disable memory accounting.
func New(sch *schema.Schema, proj schema.Projection, keysModel model.KeysModel, rc *resource.Controller) *MemTable {
	return &MemTable{
		sch:       sch,
		proj:      proj,
		keysModel: keysModel,
		rc:        rc,
		rows:      make([]schema.Row, 0, 1024),
	}
}

// Insert projects and buffers one incoming row. Fails only on resource
// exhaustion.
func (m *MemTable) Insert(in schema.Row) error {
	if m.flushed {
		panic("memtable: insert after flush")
	}
	row := m.proj.Apply(in)
	size := schema.SizeOf(row)
	if err := m.rc.ReserveMemory(size); err != nil {
		return fmt.Errorf("memtable: insert: %w", err)
	}
	m.rows = append(m.rows, row)
	m.memBytes += size
	return nil
}

// MemoryUsage returns the estimated buffered bytes. Monotonically
// non-decreasing between flushes.
func (m *MemTable) MemoryUsage() int64 { return m.memBytes }

// RowCount returns the number of buffered rows.
func (m *MemTable) RowCount() int { return len(m.rows) }

// Flush drains every buffered row into w as one segment, ordered by the
// bound key model. All-or-nothing: on error the rows stay buffered and
// no partial segment is recorded. After a successful flush the
// MemTable is spent and must be replaced.
func (m *MemTable) Flush(ctx context.Context, w *rowset.Writer) error {
	if m.flushed {
		panic("memtable: flush called twice")
	}

	batch := m.prepareBatch()
	if err := w.FlushBatch(ctx, batch); err != nil {
		return err
	}

	m.flushed = true
	m.rc.ReleaseMemory(m.memBytes)
	m.rows = nil
	return nil
}

// Discard releases the memory reservation without flushing. Called by
// cleanup when a load is abandoned.
func (m *MemTable) Discard() {
	if m.flushed {
		return
	}
	m.flushed = true
	m.rc.ReleaseMemory(m.memBytes)
	m.rows = nil
}

// prepareBatch orders the buffered rows per the key model. Sorting is
// stable so rows with equal keys keep insertion order, which makes
// "last wins" well defined for the unique model.
func (m *MemTable) prepareBatch() []schema.Row {
	if len(m.rows) == 0 {
		return nil
	}
	if m.keysModel == model.KeysDuplicate {
		return m.rows
	}

	numKeys := m.sch.NumKeyColumns()
	sorted := make([]schema.Row, len(m.rows))
	copy(sorted, m.rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return schema.CompareKeys(sorted[i], sorted[j], numKeys) < 0
	})

	out := sorted[:0]
	for _, row := range sorted {
		if len(out) == 0 || schema.CompareKeys(out[len(out)-1], row, numKeys) != 0 {
			out = append(out, row)
			continue
		}
		last := out[len(out)-1]
		switch m.keysModel {
		case model.KeysUnique:
			out[len(out)-1] = row
		case model.KeysAggregate:
			out[len(out)-1] = m.aggregate(last, row)
		}
	}
	return out
}

// aggregate folds next into acc column by column. Key columns are equal
// by construction.
func (m *MemTable) aggregate(acc, next schema.Row) schema.Row {
	numKeys := m.sch.NumKeyColumns()
	out := make(schema.Row, len(acc))
	copy(out, acc[:numKeys])
	for i := numKeys; i < len(acc); i++ {
		out[i] = foldDatum(m.sch.Column(i), acc[i], next[i])
	}
	return out
}

func foldDatum(col schema.Column, acc, next schema.Datum) schema.Datum {
	if next.IsNull() {
		return acc
	}
	if acc.IsNull() {
		return next
	}
	switch col.Aggregation {
	case schema.AggSum:
		switch col.Type {
		case schema.TypeInt64:
			return schema.Int64(acc.I64 + next.I64)
		case schema.TypeFloat64:
			return schema.Float64(acc.F64 + next.F64)
		}
		return next
	case schema.AggMax:
		if next.Compare(acc) > 0 {
			return next
		}
		return acc
	case schema.AggMin:
		if next.Compare(acc) < 0 {
			return next
		}
		return acc
	case schema.AggReplace, schema.AggNone:
		return next
	default:
		return next
	}
}
