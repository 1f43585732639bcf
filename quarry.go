package quarry

import (
	"fmt"
	"path/filepath"

	"github.com/quarrydb/quarry/engine"
	"github.com/quarrydb/quarry/internal/fs"
	"github.com/quarrydb/quarry/model"
	"github.com/quarrydb/quarry/resource"
	"github.com/quarrydb/quarry/schema"
	"github.com/quarrydb/quarry/tablet"
	"github.com/quarrydb/quarry/txn"
	"github.com/quarrydb/quarry/writer"
)

// DB is the embedded storage engine handle. It owns the process-wide
// write-path services and hands out per-load writers.
type DB struct {
	eng *engine.StorageEngine
	rc  *resource.Controller
}

// Option configures a DB.
type Option func(*config)

type config struct {
	logger   *Logger
	fsys     fs.FileSystem
	resCfg   resource.Config
	txnStore txn.RecordStore
}

// WithLogger sets the logger used by all engine components.
func WithLogger(l *Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMemoryLimit bounds the bytes buffered across all open writers.
// Inserts fail with resource.ErrMemoryExhausted once the limit is hit
// and a flush has not yet released buffered rows.
func WithMemoryLimit(bytes int64) Option {
	return func(c *config) { c.resCfg.MemoryLimitBytes = bytes }
}

// WithIOLimit throttles segment writes to bytes/sec across the engine.
func WithIOLimit(bytesPerSec int64) Option {
	return func(c *config) { c.resCfg.IOLimitBytesPerSec = bytesPerSec }
}

// WithTxnStore persists transaction records to a durable backend, for
// example txn.NewDynamoStore, so pending loads survive a crash.
func WithTxnStore(store txn.RecordStore) Option {
	return func(c *config) { c.txnStore = store }
}

// WithFS overrides the filesystem, mainly for fault-injection tests.
func WithFS(fsys fs.FileSystem) Option {
	return func(c *config) {
		if fsys != nil {
			c.fsys = fsys
		}
	}
}

// Open opens (creating if needed) a storage engine rooted at rootDir.
func Open(rootDir string, opts ...Option) (*DB, error) {
	c := &config{
		logger: NoopLogger(),
		fsys:   fs.Default,
	}
	for _, opt := range opts {
		opt(c)
	}

	rc := resource.NewController(c.resCfg)
	eng, err := engine.Open(rootDir,
		engine.WithLogger(c.logger.Logger),
		engine.WithFS(c.fsys),
		engine.WithResourceController(rc),
		engine.WithTxnStore(c.txnStore),
	)
	if err != nil {
		return nil, fmt.Errorf("quarry: %w", err)
	}
	return &DB{eng: eng, rc: rc}, nil
}

// Engine exposes the underlying service handles.
func (db *DB) Engine() *engine.StorageEngine { return db.eng }

// CreateTablet registers a tablet under the engine root and returns
// it. The tablet's storage directory is derived from its identity.
func (db *DB) CreateTablet(id model.TabletID, hash model.SchemaHash, sch *schema.Schema) (*tablet.Tablet, error) {
	tab := tablet.New(id, hash, filepath.Join(db.eng.RootDir(), "data"), sch)
	if err := db.eng.Tablets().Add(tab); err != nil {
		return nil, fmt.Errorf("quarry: %w", err)
	}
	return tab, nil
}

// Tablet looks up a registered tablet revision.
func (db *DB) Tablet(id model.TabletID, hash model.SchemaHash) (*tablet.Tablet, error) {
	return db.eng.Tablets().Get(id, hash)
}

// NewWriter creates a DeltaWriter for one load. The caller owns its
// lifecycle: Write rows, then Close on success, and always Release.
func (db *DB) NewWriter(req writer.WriteRequest, opts ...writer.Option) *writer.DeltaWriter {
	return writer.Open(req, db.eng, opts...)
}

// Close tears the engine down. Open writers must be released first.
func (db *DB) Close() error {
	return db.eng.Close()
}
