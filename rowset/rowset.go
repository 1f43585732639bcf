// Package rowset builds and describes rowsets: immutable,
// transactionally-scoped units of written column data.
//
// A Writer accepts any number of flushed row batches and seals them
// into exactly one Rowset. Segment files are block-encoded (format.go)
// and written under the owning tablet's pending directory until the
// transaction commits.
package rowset

import (
	"fmt"

	"github.com/quarrydb/quarry/model"
)

// State is the lifecycle state recorded in rowset metadata.
type State int

const (
	// StatePrepared marks a rowset written by a still-pending load.
	StatePrepared State = iota
	// StateCommitted marks a rowset whose transaction committed.
	StateCommitted
	// StateVisible marks a published, readable rowset.
	StateVisible
)

func (s State) String() string {
	switch s {
	case StatePrepared:
		return "PREPARED"
	case StateCommitted:
		return "COMMITTED"
	case StateVisible:
		return "VISIBLE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Kind records what produced a rowset.
type Kind int

const (
	// KindLoad is a rowset written directly by a load.
	KindLoad Kind = iota
	// KindSchemaChange is a rowset derived for a schema-change target
	// tablet.
	KindSchemaChange
)

// SegmentMeta describes one sealed segment file.
type SegmentMeta struct {
	// Name is the file name relative to the rowset's path prefix.
	Name string `json:"name"`
	// Path is the absolute segment path.
	Path string `json:"path"`
	// Rows is the number of rows in the segment.
	Rows int `json:"rows"`
	// RawBytes is the encoded size before compression.
	RawBytes int64 `json:"raw_bytes"`
	// DiskBytes is the on-disk file size.
	DiskBytes int64 `json:"disk_bytes"`
	// CRC is the checksum over the segment file body.
	CRC uint32 `json:"crc"`
}

// Meta is the durable description of a rowset.
type Meta struct {
	RowsetID    model.RowsetID    `json:"rowset_id"`
	PartitionID model.PartitionID `json:"partition_id"`
	TabletID    model.TabletID    `json:"tablet_id"`
	SchemaHash  model.SchemaHash  `json:"schema_hash"`
	TxnID       model.TxnID       `json:"txn_id"`
	LoadID      model.LoadID      `json:"load_id"`
	State       State             `json:"state"`
	Kind        Kind              `json:"kind"`
	PathPrefix  string            `json:"path_prefix"`
	RowCount    int64             `json:"row_count"`
	Segments    []SegmentMeta     `json:"segments"`
}

// Rowset is an immutable, sealed unit of written data. It is produced
// by Writer.Build, or rehydrated from persisted metadata with
// FromMeta; partial builds never escape the writer.
type Rowset struct {
	meta Meta
}

// FromMeta rehydrates a rowset from persisted metadata.
func FromMeta(meta Meta) *Rowset {
	return &Rowset{meta: meta}
}

// ID returns the rowset id.
func (r *Rowset) ID() model.RowsetID { return r.meta.RowsetID }

// TabletID returns the owning tablet id.
func (r *Rowset) TabletID() model.TabletID { return r.meta.TabletID }

// TxnID returns the owning transaction id.
func (r *Rowset) TxnID() model.TxnID { return r.meta.TxnID }

// RowCount returns the total number of rows across segments.
func (r *Rowset) RowCount() int64 { return r.meta.RowCount }

// Segments returns the sealed segment descriptors.
func (r *Rowset) Segments() []SegmentMeta { return r.meta.Segments }

// Meta returns a copy of the rowset metadata.
func (r *Rowset) Meta() Meta { return r.meta }

func (r *Rowset) String() string {
	return fmt.Sprintf("rowset(id=%d tablet=%d.%d txn=%d rows=%d segments=%d)",
		r.meta.RowsetID, r.meta.TabletID, r.meta.SchemaHash, r.meta.TxnID,
		r.meta.RowCount, len(r.meta.Segments))
}
