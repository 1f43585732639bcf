// Package tablet models tablets (table shards) and the process-wide
// tablet directory.
package tablet

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/quarrydb/quarry/model"
	"github.com/quarrydb/quarry/schema"
)

// SchemaChangeRequest names the target revision of an in-progress
// online schema change. While the request is set, loads against the
// source tablet dual-write into the target.
type SchemaChangeRequest struct {
	NewTabletID   model.TabletID
	NewSchemaHash model.SchemaHash
}

// Tablet is one revision of a table shard. Tablets are looked up from
// the Manager and shared between writers; they are never owned by a
// single load.
type Tablet struct {
	id         model.TabletID
	schemaHash model.SchemaHash
	dataDir    string
	sch        *schema.Schema

	// pushMu serializes write-path state transitions: schema-change
	// detection, transaction registration and pending-directory
	// creation. Never held across flush or build IO.
	pushMu sync.Mutex

	// headerMu guards the mutable header fields below.
	headerMu     sync.RWMutex
	schemaChange *SchemaChangeRequest
}

// New creates a tablet rooted in dataDir. The schema snapshot is owned
// by the tablet and must not be mutated afterwards.
func New(id model.TabletID, schemaHash model.SchemaHash, dataDir string, sch *schema.Schema) *Tablet {
	return &Tablet{
		id:         id,
		schemaHash: schemaHash,
		dataDir:    dataDir,
		sch:        sch,
	}
}

// ID returns the tablet id.
func (t *Tablet) ID() model.TabletID { return t.id }

// SchemaHash returns the schema revision hash.
func (t *Tablet) SchemaHash() model.SchemaHash { return t.schemaHash }

// Schema returns the tablet's schema snapshot.
func (t *Tablet) Schema() *schema.Schema { return t.sch }

// KeysModel returns the tablet's key model.
func (t *Tablet) KeysModel() model.KeysModel { return t.sch.KeysModel() }

// Info returns the (id, schema hash) pair.
func (t *Tablet) Info() model.TabletInfo {
	return model.TabletInfo{TabletID: t.id, SchemaHash: t.schemaHash}
}

// FullName returns "tablet_id.schema_hash".
func (t *Tablet) FullName() string { return t.Info().String() }

// DataDir returns the storage directory the tablet lives in. Rowset ids
// and rowset metadata are scoped to this directory.
func (t *Tablet) DataDir() string { return t.dataDir }

// Path returns the tablet's own directory under its data dir.
func (t *Tablet) Path() string {
	return filepath.Join(t.dataDir, fmt.Sprintf("tablet_%d_%d", t.id, t.schemaHash))
}

// PendingDir returns the directory holding segments of not-yet-committed
// rowsets. Created idempotently before the first segment is written.
func (t *Tablet) PendingDir() string {
	return filepath.Join(t.Path(), "pending")
}

// PushLock returns the per-tablet write-path lock.
func (t *Tablet) PushLock() *sync.Mutex { return &t.pushMu }

// SetSchemaChange installs or clears (with nil) the schema-change
// target.
func (t *Tablet) SetSchemaChange(req *SchemaChangeRequest) {
	t.headerMu.Lock()
	defer t.headerMu.Unlock()
	t.schemaChange = req
}

// SchemaChangeTarget reports the target revision of an in-progress
// schema change, taken under a read-held header lock.
func (t *Tablet) SchemaChangeTarget() (model.TabletID, model.SchemaHash, bool) {
	t.headerMu.RLock()
	defer t.headerMu.RUnlock()
	if t.schemaChange == nil {
		return 0, 0, false
	}
	return t.schemaChange.NewTabletID, t.schemaChange.NewSchemaHash, true
}
