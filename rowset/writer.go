package rowset

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/quarrydb/quarry/internal/fs"
	"github.com/quarrydb/quarry/model"
	"github.com/quarrydb/quarry/resource"
	"github.com/quarrydb/quarry/schema"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// WriterContext binds a Writer to one rowset of one tablet.
type WriterContext struct {
	RowsetID    model.RowsetID
	TabletID    model.TabletID
	PartitionID model.PartitionID
	SchemaHash  model.SchemaHash
	TxnID       model.TxnID
	LoadID      model.LoadID
	Kind        Kind
	// PathPrefix is the directory segment files are written into,
	// normally the tablet's pending directory.
	PathPrefix string
	// Schema is the tablet schema snapshot rows are aligned to.
	Schema *schema.Schema
}

type writerState int

const (
	writerCreated writerState = iota
	writerPrepared
	writerBuilding
	writerBuilt
)

// Writer assembles flushed row batches into exactly one Rowset.
//
// Lifecycle: Init exactly once, FlushBatch any number of times, Build
// exactly once. Calling FlushBatch after Build, Init twice, or Build
// before Init is a caller bug and panics.
type Writer struct {
	fsys  fs.FileSystem
	rc    *resource.Controller
	codec CompressionType

	wctx     WriterContext
	state    writerState
	segments []SegmentMeta
	rowCount int64
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithFS overrides the filesystem used for segment IO.
func WithFS(fsys fs.FileSystem) WriterOption {
	return func(w *Writer) {
		if fsys != nil {
			w.fsys = fsys
		}
	}
}

// WithResourceController sets the controller pacing segment IO.
func WithResourceController(rc *resource.Controller) WriterOption {
	return func(w *Writer) { w.rc = rc }
}

// WithCompression selects the segment body codec.
func WithCompression(codec CompressionType) WriterOption {
	return func(w *Writer) { w.codec = codec }
}

// NewWriter creates an unbound Writer. It becomes usable after Init.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{
		fsys:  fs.Default,
		codec: CompressionS2,
		state: writerCreated,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Init binds the writer to a rowset. Called exactly once, before any
// flush.
func (w *Writer) Init(wctx WriterContext) error {
	if w.state != writerCreated {
		panic("rowset: Writer.Init called twice")
	}
	if wctx.Schema == nil {
		return fmt.Errorf("rowset: writer context has no schema")
	}
	if wctx.PathPrefix == "" {
		return fmt.Errorf("rowset: writer context has no path prefix")
	}
	w.wctx = wctx
	w.state = writerPrepared
	return nil
}

// FlushBatch seals rows into one segment file. Rows must be aligned to
// the bound schema. An empty batch writes nothing and is not an error.
// On failure no segment is recorded; the file, if any, is removed.
func (w *Writer) FlushBatch(ctx context.Context, rows []schema.Row) error {
	switch w.state {
	case writerCreated:
		panic("rowset: FlushBatch before Init")
	case writerBuilt:
		panic("rowset: FlushBatch after Build")
	}
	w.state = writerBuilding

	if len(rows) == 0 {
		return nil
	}

	body, err := encodeColumns(w.wctx.Schema, rows)
	if err != nil {
		return fmt.Errorf("rowset: encode segment: %w", err)
	}
	compressed, err := compressBody(w.codec, body)
	if err != nil {
		return fmt.Errorf("rowset: compress segment: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(segmentMagic)
	scratch := make([]byte, 4)
	binary.LittleEndian.PutUint32(scratch, segmentVersion)
	buf.Write(scratch)
	buf.WriteByte(byte(w.codec))
	binary.LittleEndian.PutUint32(scratch, uint32(w.wctx.Schema.NumColumns()))
	buf.Write(scratch)
	binary.LittleEndian.PutUint32(scratch, uint32(len(rows)))
	buf.Write(scratch)
	binary.LittleEndian.PutUint32(scratch, uint32(len(compressed)))
	buf.Write(scratch)
	buf.Write(compressed)

	crc := crc32.Checksum(buf.Bytes(), castagnoli)
	binary.LittleEndian.PutUint32(scratch, crc)
	buf.Write(scratch)

	name := fmt.Sprintf("%d_%d.dat", w.wctx.RowsetID, len(w.segments))
	path := filepath.Join(w.wctx.PathPrefix, name)

	if err := w.rc.WaitIO(ctx, buf.Len()); err != nil {
		return fmt.Errorf("rowset: throttled segment write: %w", err)
	}
	if err := w.writeSegmentFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("rowset: write segment %s: %w", name, err)
	}

	w.segments = append(w.segments, SegmentMeta{
		Name:      name,
		Path:      path,
		Rows:      len(rows),
		RawBytes:  int64(len(body)),
		DiskBytes: int64(buf.Len()),
		CRC:       crc,
	})
	w.rowCount += int64(len(rows))
	return nil
}

func (w *Writer) writeSegmentFile(path string, data []byte) error {
	f, err := w.fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		w.fsys.Remove(path)
		return err
	}
	if err := fs.Datasync(f); err != nil {
		f.Close()
		w.fsys.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		w.fsys.Remove(path)
		return err
	}
	return nil
}

// Build seals the rowset. Called exactly once, after the final flush.
func (w *Writer) Build() (*Rowset, error) {
	switch w.state {
	case writerCreated:
		panic("rowset: Build before Init")
	case writerBuilt:
		panic("rowset: Build called twice")
	}

	if err := fs.SyncDir(w.fsys, w.wctx.PathPrefix); err != nil {
		return nil, fmt.Errorf("rowset: sync segment dir: %w", err)
	}

	w.state = writerBuilt
	return &Rowset{
		meta: Meta{
			RowsetID:    w.wctx.RowsetID,
			PartitionID: w.wctx.PartitionID,
			TabletID:    w.wctx.TabletID,
			SchemaHash:  w.wctx.SchemaHash,
			TxnID:       w.wctx.TxnID,
			LoadID:      w.wctx.LoadID,
			State:       StatePrepared,
			Kind:        w.wctx.Kind,
			PathPrefix:  w.wctx.PathPrefix,
			RowCount:    w.rowCount,
			Segments:    w.segments,
		},
	}, nil
}

// SegmentCount returns the number of sealed segments so far.
func (w *Writer) SegmentCount() int { return len(w.segments) }
