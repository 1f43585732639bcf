// Package engine wires the process-wide write-path services: the
// tablet directory, the transaction registry, the rowset id allocator,
// the rowset meta store and unused-rowset bookkeeping.
//
// These are singletons per process in spirit, but they are plain
// values created by Open and passed around as explicit handles, with
// Close as the explicit teardown.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/quarrydb/quarry/internal/fs"
	"github.com/quarrydb/quarry/metastore"
	"github.com/quarrydb/quarry/resource"
	"github.com/quarrydb/quarry/rowset"
	"github.com/quarrydb/quarry/tablet"
	"github.com/quarrydb/quarry/txn"
)

// StorageEngine owns the write-path services for one process.
type StorageEngine struct {
	rootDir string
	fsys    fs.FileSystem
	rc      *resource.Controller
	logger  *slog.Logger

	tablets *tablet.Manager
	txns    *txn.Manager
	ids     *IDAllocator
	meta    *metastore.Store

	mu     sync.Mutex
	unused []*rowset.Rowset
	closed bool
}

// Option configures a StorageEngine.
type Option func(*options)

type options struct {
	fsys     fs.FileSystem
	rc       *resource.Controller
	logger   *slog.Logger
	txnStore txn.RecordStore
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFS overrides the filesystem used by all engine services.
func WithFS(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fsys = fsys
		}
	}
}

// WithResourceController sets the controller shared by write buffers
// and segment IO.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.rc = rc }
}

// WithTxnStore sets the durable backend of the transaction registry.
func WithTxnStore(store txn.RecordStore) Option {
	return func(o *options) { o.txnStore = store }
}

// Open creates the engine services rooted at rootDir.
func Open(rootDir string, opts ...Option) (*StorageEngine, error) {
	o := &options{
		fsys:   fs.Default,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := o.fsys.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("engine: create root dir: %w", err)
	}

	return &StorageEngine{
		rootDir: rootDir,
		fsys:    o.fsys,
		rc:      o.rc,
		logger:  o.logger,
		tablets: tablet.NewManager(),
		txns:    txn.NewManager(o.txnStore),
		ids:     NewIDAllocator(o.fsys),
		meta:    metastore.NewStore(o.fsys),
	}, nil
}

// Close tears the engine down. Writers must be released first.
func (e *StorageEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if n := len(e.unused); n > 0 {
		e.logger.Info("engine closed with unreclaimed rowsets", "count", n)
	}
	return nil
}

// RootDir returns the engine's root storage directory.
func (e *StorageEngine) RootDir() string { return e.rootDir }

// FS returns the engine filesystem.
func (e *StorageEngine) FS() fs.FileSystem { return e.fsys }

// Resources returns the shared resource controller (may be nil).
func (e *StorageEngine) Resources() *resource.Controller { return e.rc }

// Logger returns the engine logger.
func (e *StorageEngine) Logger() *slog.Logger { return e.logger }

// Tablets returns the tablet directory.
func (e *StorageEngine) Tablets() *tablet.Manager { return e.tablets }

// Txns returns the transaction registry.
func (e *StorageEngine) Txns() *txn.Manager { return e.txns }

// IDs returns the rowset id allocator.
func (e *StorageEngine) IDs() *IDAllocator { return e.ids }

// Meta returns the rowset meta store.
func (e *StorageEngine) Meta() *metastore.Store { return e.meta }

// AddUnusedRowset marks rs disposable for later reclamation. A nil
// rowset is ignored so cleanup paths can pass whatever they have.
func (e *StorageEngine) AddUnusedRowset(rs *rowset.Rowset) {
	if rs == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unused = append(e.unused, rs)
	e.logger.Info("rowset marked unused",
		"rowset_id", int64(rs.ID()),
		"tablet_id", int64(rs.TabletID()),
		"txn_id", int64(rs.TxnID()))
}

// UnusedRowsets returns the rowsets currently marked disposable.
func (e *StorageEngine) UnusedRowsets() []*rowset.Rowset {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*rowset.Rowset, len(e.unused))
	copy(out, e.unused)
	return out
}

// SweepUnusedRowsets deletes the segment files and metadata of every
// rowset marked unused. Failures are logged and the rowset is retried
// on the next sweep.
func (e *StorageEngine) SweepUnusedRowsets(dataDirOf func(*rowset.Rowset) string) int {
	e.mu.Lock()
	pending := e.unused
	e.unused = nil
	e.mu.Unlock()

	swept := 0
	var retry []*rowset.Rowset
	for _, rs := range pending {
		if err := e.reclaim(rs, dataDirOf(rs)); err != nil {
			e.logger.Error("reclaim rowset failed", "rowset_id", int64(rs.ID()), "error", err)
			retry = append(retry, rs)
			continue
		}
		swept++
	}

	if len(retry) > 0 {
		e.mu.Lock()
		e.unused = append(e.unused, retry...)
		e.mu.Unlock()
	}
	return swept
}

func (e *StorageEngine) reclaim(rs *rowset.Rowset, dataDir string) error {
	for _, seg := range rs.Segments() {
		if err := e.fsys.Remove(seg.Path); err != nil && !isNotExist(err) {
			return fmt.Errorf("remove segment %s: %w", seg.Name, err)
		}
	}
	return e.meta.Remove(dataDir, rs.ID())
}

func isNotExist(err error) bool { return os.IsNotExist(err) }
