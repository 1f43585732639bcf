// Package writer implements the per-load write path: a DeltaWriter
// turns one stream of rows into a sealed rowset for one transaction on
// one tablet, with an optional twin write when the tablet is migrating
// to a new schema.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quarrydb/quarry/engine"
	"github.com/quarrydb/quarry/memtable"
	"github.com/quarrydb/quarry/model"
	"github.com/quarrydb/quarry/rowset"
	"github.com/quarrydb/quarry/schema"
	"github.com/quarrydb/quarry/schemachange"
	"github.com/quarrydb/quarry/tablet"
	"github.com/quarrydb/quarry/txn"
)

// ErrInit is returned when lazy initialization fails after the
// transaction was registered; the record stays behind for Release to
// clean up.
var ErrInit = errors.New("writer: init failed")

// defaultFlushThreshold is the buffered-bytes level that triggers an
// intermediate flush.
const defaultFlushThreshold = 64 << 20

// WriteRequest describes one load targeting one tablet revision. It is
// supplied at construction and owned for the writer's lifetime.
type WriteRequest struct {
	TabletID    model.TabletID
	SchemaHash  model.SchemaHash
	PartitionID model.PartitionID
	TxnID       model.TxnID
	LoadID      model.LoadID

	// Shape names the incoming row fields, in row order. Tablet
	// columns are matched to fields by name.
	Shape schema.RowShape

	// NeedGenRollup asks the writer to check for an in-progress
	// schema change and, if one is found, dual-write the load to the
	// migration target tablet.
	NeedGenRollup bool
}

// Converter derives a rowset for a schema-change target tablet from an
// already-sealed source rowset.
type Converter interface {
	Convert(ctx context.Context, source *rowset.Rowset, srcSchema *schema.Schema, target *tablet.Tablet, newID model.RowsetID) (*rowset.Rowset, error)
}

type state int

const (
	stateCreated state = iota
	stateInitialized
	stateWriting
	stateClosed
	stateCancelled
)

func (s state) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateInitialized:
		return "initialized"
	case stateWriting:
		return "writing"
	case stateClosed:
		return "closed"
	case stateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DeltaWriter drives the write path for one (txn, tablet) pair. One
// goroutine owns it; Write and Close must not race. A writer that did
// not reach a successful Close must be Released so its transaction
// records and unfinished rowsets are reclaimed.
type DeltaWriter struct {
	req WriteRequest
	eng *engine.StorageEngine

	logger         *slog.Logger
	flushThreshold int64
	converter      Converter

	st  state
	tab *tablet.Tablet

	txnKey   txn.Key
	prepared bool

	related         *tablet.Tablet
	relatedKey      txn.Key
	relatedPrepared bool

	proj schema.Projection
	mem  *memtable.MemTable
	rw   *rowset.Writer

	rs        *rowset.Rowset
	relatedRS *rowset.Rowset

	committed bool
	released  bool
}

// Option configures a DeltaWriter.
type Option func(*DeltaWriter)

// WithFlushThreshold sets the buffered-bytes level that triggers an
// intermediate flush.
func WithFlushThreshold(bytes int64) Option {
	return func(w *DeltaWriter) {
		if bytes > 0 {
			w.flushThreshold = bytes
		}
	}
}

// WithConverter overrides the schema change converter.
func WithConverter(c Converter) Option {
	return func(w *DeltaWriter) {
		if c != nil {
			w.converter = c
		}
	}
}

// WithLogger sets the writer logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *DeltaWriter) {
		if l != nil {
			w.logger = l
		}
	}
}

// Open creates a DeltaWriter bound to eng. No tablet state is touched
// until the first Write or Close; construction cannot fail.
func Open(req WriteRequest, eng *engine.StorageEngine, opts ...Option) *DeltaWriter {
	w := &DeltaWriter{
		req:            req,
		eng:            eng,
		logger:         eng.Logger(),
		flushThreshold: defaultFlushThreshold,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.converter == nil {
		w.converter = schemachange.NewHandler(
			schemachange.WithFS(eng.FS()),
			schemachange.WithResourceController(eng.Resources()),
			schemachange.WithLogger(w.logger),
		)
	}
	return w
}

// State returns the writer's lifecycle state name, for diagnostics.
func (w *DeltaWriter) State() string { return w.st.String() }

// init runs at most once, on the first Write or Close. Tablet lookup
// happens before any side effect; everything that mutates shared state
// (transaction registration, twin detection, pending dir creation)
// runs under the tablet's push lock.
func (w *DeltaWriter) init(ctx context.Context) error {
	tab, err := w.eng.Tablets().Get(w.req.TabletID, w.req.SchemaHash)
	if err != nil {
		return fmt.Errorf("writer: tablet %d.%d: %w", w.req.TabletID, w.req.SchemaHash, err)
	}
	w.tab = tab

	if err := w.registerUnderLock(ctx, tab); err != nil {
		return err
	}

	id, err := w.eng.IDs().Next(tab.DataDir())
	if err != nil {
		return err
	}

	w.rw = rowset.NewWriter(
		rowset.WithFS(w.eng.FS()),
		rowset.WithResourceController(w.eng.Resources()),
	)
	err = w.rw.Init(rowset.WriterContext{
		RowsetID:    id,
		TabletID:    tab.ID(),
		PartitionID: w.req.PartitionID,
		SchemaHash:  tab.SchemaHash(),
		TxnID:       w.req.TxnID,
		LoadID:      w.req.LoadID,
		Kind:        rowset.KindLoad,
		PathPrefix:  tab.PendingDir(),
		Schema:      tab.Schema(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInit, err)
	}

	w.proj = schema.BuildProjection(tab.Schema(), w.req.Shape)
	w.mem = w.newMemTable()
	w.st = stateInitialized

	w.logger.Info("delta writer initialized",
		"tablet", tab.FullName(),
		"txn_id", int64(w.req.TxnID),
		"load_id", string(w.req.LoadID),
		"rowset_id", int64(id),
		"dual_write", w.related != nil)
	return nil
}

// registerUnderLock holds the tablet push lock across transaction
// registration, schema-change twin detection and pending directory
// creation. The lock is never held across flush or build IO.
func (w *DeltaWriter) registerUnderLock(ctx context.Context, tab *tablet.Tablet) error {
	lock := tab.PushLock()
	lock.Lock()
	defer lock.Unlock()

	w.txnKey = txn.Key{
		PartitionID: w.req.PartitionID,
		TxnID:       w.req.TxnID,
		TabletID:    tab.ID(),
		SchemaHash:  tab.SchemaHash(),
	}
	if err := w.eng.Txns().Prepare(ctx, w.txnKey, w.req.LoadID); err != nil {
		return err
	}
	w.prepared = true

	if w.req.NeedGenRollup {
		if newID, newHash, ok := tab.SchemaChangeTarget(); ok {
			rel, err := w.eng.Tablets().Get(newID, newHash)
			if err != nil {
				return fmt.Errorf("%w: related tablet %d.%d: %v", ErrInit, newID, newHash, err)
			}
			w.relatedKey = txn.Key{
				PartitionID: w.req.PartitionID,
				TxnID:       w.req.TxnID,
				TabletID:    newID,
				SchemaHash:  newHash,
			}
			if err := w.eng.Txns().Prepare(ctx, w.relatedKey, w.req.LoadID); err != nil {
				return err
			}
			w.relatedPrepared = true
			w.related = rel
		}
	}

	if err := w.eng.FS().MkdirAll(tab.PendingDir(), 0755); err != nil {
		return fmt.Errorf("%w: create pending dir: %v", ErrInit, err)
	}
	return nil
}

func (w *DeltaWriter) newMemTable() *memtable.MemTable {
	return memtable.New(w.tab.Schema(), w.proj, w.tab.KeysModel(), w.eng.Resources())
}

// Write inserts one row, initializing lazily on the first call. When
// the active buffer reaches the flush threshold it is flushed into the
// segment writer and replaced with a fresh one; the flush may block on
// IO, which is the only backpressure in the path.
func (w *DeltaWriter) Write(ctx context.Context, row schema.Row) error {
	switch w.st {
	case stateClosed, stateCancelled:
		panic(fmt.Sprintf("writer: Write on %s writer", w.st))
	case stateCreated:
		if err := w.init(ctx); err != nil {
			return err
		}
	}

	if err := w.mem.Insert(row); err != nil {
		return err
	}
	w.st = stateWriting

	if w.mem.MemoryUsage() >= w.flushThreshold {
		if err := w.mem.Flush(ctx, w.rw); err != nil {
			return fmt.Errorf("writer: flush buffer: %w", err)
		}
		w.mem = w.newMemTable()
	}
	return nil
}

// Close finalizes the load: final flush, seal the primary rowset,
// persist its metadata, then do the same for the schema-change twin if
// one is engaged. On success the engaged tablets are appended to dest,
// in primary-first order, and the writer is committed; Release becomes
// a no-op.
//
// If the twin write fails after the primary metadata persisted, the
// primary stays durable and its transaction record stays pending; the
// call reports failure and the two tablets are left inconsistent for
// the commit layer to resolve. Close does not roll the primary back.
func (w *DeltaWriter) Close(ctx context.Context, dest *[]model.TabletInfo) error {
	switch w.st {
	case stateClosed, stateCancelled:
		panic(fmt.Sprintf("writer: Close on %s writer", w.st))
	case stateCreated:
		if err := w.init(ctx); err != nil {
			return err
		}
	}

	if err := w.mem.Flush(ctx, w.rw); err != nil {
		return fmt.Errorf("writer: final flush: %w", err)
	}

	rs, err := w.rw.Build()
	if err != nil {
		return fmt.Errorf("writer: build rowset: %w", err)
	}
	w.rs = rs

	if err := w.eng.Meta().Save(w.tab.DataDir(), rs.ID(), rs.Meta()); err != nil {
		return fmt.Errorf("writer: persist rowset meta: %w", err)
	}

	if w.related != nil {
		if err := w.closeRelated(ctx); err != nil {
			return err
		}
	}

	if err := w.eng.Txns().Commit(ctx, w.txnKey); err != nil {
		return fmt.Errorf("writer: commit txn: %w", err)
	}
	if w.related != nil {
		if err := w.eng.Txns().Commit(ctx, w.relatedKey); err != nil {
			return fmt.Errorf("writer: commit related txn: %w", err)
		}
	}

	*dest = append(*dest, w.tab.Info())
	if w.related != nil {
		*dest = append(*dest, w.related.Info())
	}

	w.committed = true
	w.st = stateClosed

	w.logger.Info("delta writer closed",
		"tablet", w.tab.FullName(),
		"txn_id", int64(w.req.TxnID),
		"rowset_id", int64(rs.ID()),
		"rows", rs.RowCount(),
		"segments", len(rs.Segments()))
	return nil
}

func (w *DeltaWriter) closeRelated(ctx context.Context) error {
	lock := w.related.PushLock()
	lock.Lock()
	err := w.eng.FS().MkdirAll(w.related.PendingDir(), 0755)
	lock.Unlock()
	if err != nil {
		return fmt.Errorf("writer: create related pending dir: %w", err)
	}

	id, err := w.eng.IDs().Next(w.related.DataDir())
	if err != nil {
		return err
	}

	rs, err := w.converter.Convert(ctx, w.rs, w.tab.Schema(), w.related, id)
	if err != nil {
		return fmt.Errorf("writer: convert for %s: %w", w.related.FullName(), err)
	}
	w.relatedRS = rs

	if err := w.eng.Meta().Save(w.related.DataDir(), rs.ID(), rs.Meta()); err != nil {
		return fmt.Errorf("writer: persist related rowset meta: %w", err)
	}
	return nil
}

// Cancel abandons a writer that never initialized. The caller asserts
// no Write happened; cancelling an initialized writer is a usage error
// and panics.
func (w *DeltaWriter) Cancel() error {
	if w.st != stateCreated {
		panic(fmt.Sprintf("writer: Cancel on %s writer", w.st))
	}
	w.st = stateCancelled
	return nil
}

// Release reclaims writer-held bookkeeping. It must be called when
// the owner is done with the writer, on every path; after a successful
// Close (or a pre-init Cancel) it is a no-op. Otherwise it deletes
// the transaction records this writer registered, discards buffered
// rows, and hands any sealed-but-uncommitted rowsets to the engine's
// unused-rowset reclamation. Safe to call more than once.
func (w *DeltaWriter) Release(ctx context.Context) {
	if w.released {
		return
	}
	w.released = true
	if w.committed {
		return
	}

	if w.mem != nil {
		w.mem.Discard()
	}

	if w.prepared {
		if err := w.eng.Txns().Delete(ctx, w.txnKey); err != nil {
			w.logger.Error("release: delete txn record", "key", w.txnKey.String(), "error", err)
		}
	}
	w.eng.AddUnusedRowset(w.rs)

	if w.relatedPrepared {
		if err := w.eng.Txns().Delete(ctx, w.relatedKey); err != nil {
			w.logger.Error("release: delete related txn record", "key", w.relatedKey.String(), "error", err)
		}
	}
	w.eng.AddUnusedRowset(w.relatedRS)

	if w.st != stateCancelled {
		w.logger.Info("delta writer released without commit",
			"txn_id", int64(w.req.TxnID),
			"state", w.st.String())
	}
}
