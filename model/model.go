// Package model defines the identity types shared across the write path.
//
// # Identity Types
//
//   - TabletID: Identifier of a table shard (int64)
//   - SchemaHash: Version hash of a tablet schema (int32)
//   - PartitionID: Identifier of the partition a load targets (int64)
//   - TxnID: Identifier of a load transaction (int64)
//   - RowsetID: Identifier of a rowset, unique per storage directory (int64)
//   - LoadID: Caller-supplied identifier of one load job (string)
//
// A (TabletID, SchemaHash) pair names a concrete tablet revision; both are
// needed because a tablet keeps its id across online schema changes while
// the hash changes.
package model

import "fmt"

// TabletID identifies a tablet (a shard of a table).
type TabletID int64

// SchemaHash identifies a schema revision of a tablet.
type SchemaHash int32

// PartitionID identifies the partition a load transaction targets.
type PartitionID int64

// TxnID identifies a load transaction.
type TxnID int64

// RowsetID identifies a rowset. IDs are allocated per storage directory
// and are never reused within it.
type RowsetID int64

// LoadID is the caller-supplied identifier of a single load job. Two
// prepare attempts carrying different LoadIDs for the same transaction
// key are a conflict, not a retry.
type LoadID string

// TabletInfo names one engaged tablet revision. Successful loads report
// one TabletInfo per tablet they wrote to.
type TabletInfo struct {
	TabletID   TabletID
	SchemaHash SchemaHash
}

// String returns a compact "tablet_id.schema_hash" form.
func (t TabletInfo) String() string {
	return fmt.Sprintf("%d.%d", t.TabletID, t.SchemaHash)
}

// KeysModel determines how rows with equal keys are treated when a
// buffer is drained into a segment.
type KeysModel int

const (
	// KeysDuplicate keeps every inserted row.
	KeysDuplicate KeysModel = iota
	// KeysUnique keeps the last inserted row per key.
	KeysUnique
	// KeysAggregate folds rows with equal keys using per-column
	// aggregations.
	KeysAggregate
)

func (k KeysModel) String() string {
	switch k {
	case KeysDuplicate:
		return "DUPLICATE"
	case KeysUnique:
		return "UNIQUE"
	case KeysAggregate:
		return "AGGREGATE"
	default:
		return fmt.Sprintf("KeysModel(%d)", int(k))
	}
}
