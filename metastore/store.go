// Package metastore durably persists rowset metadata, keyed by storage
// directory and rowset id.
//
// Each rowset's metadata is one JSON file under <dataDir>/meta, written
// via temp file, fsync and rename so a crashed save never leaves a
// partially visible record.
package metastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/quarrydb/quarry/internal/fs"
	"github.com/quarrydb/quarry/model"
	"github.com/quarrydb/quarry/rowset"
)

// ErrNotFound is returned when no metadata exists for a rowset id.
var ErrNotFound = errors.New("metastore: rowset meta not found")

const metaDirName = "meta"

// Store reads and writes rowset metadata.
type Store struct {
	fsys fs.FileSystem
	mu   sync.Mutex
}

// NewStore creates a meta store on fsys (fs.Default when nil).
func NewStore(fsys fs.FileSystem) *Store {
	if fsys == nil {
		fsys = fs.Default
	}
	return &Store{fsys: fsys}
}

func metaPath(dataDir string, id model.RowsetID) string {
	return filepath.Join(dataDir, metaDirName, fmt.Sprintf("rowset_%d.json", id))
}

// Save atomically persists meta under (dataDir, id). An existing record
// for the same id is overwritten.
func (s *Store) Save(dataDir string, id model.RowsetID, meta rowset.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("metastore: marshal rowset %d: %w", id, err)
	}

	dir := filepath.Join(dataDir, metaDirName)
	if err := s.fsys.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("metastore: create meta dir: %w", err)
	}
	if err := fs.WriteFileAtomic(s.fsys, metaPath(dataDir, id), data, 0644); err != nil {
		return fmt.Errorf("metastore: save rowset %d: %w", id, err)
	}
	if err := fs.SyncDir(s.fsys, dir); err != nil {
		return fmt.Errorf("metastore: sync meta dir: %w", err)
	}
	return nil
}

// Load reads the metadata stored under (dataDir, id).
func (s *Store) Load(dataDir string, id model.RowsetID) (rowset.Meta, error) {
	var meta rowset.Meta

	data, err := fs.ReadFile(s.fsys, metaPath(dataDir, id))
	if os.IsNotExist(err) {
		return meta, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return meta, fmt.Errorf("metastore: load rowset %d: %w", id, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("metastore: decode rowset %d: %w", id, err)
	}
	return meta, nil
}

// Remove deletes the metadata for (dataDir, id). Removing an absent
// record is a no-op.
func (s *Store) Remove(dataDir string, id model.RowsetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fsys.Remove(metaPath(dataDir, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("metastore: remove rowset %d: %w", id, err)
	}
	return nil
}

// List returns the rowset ids with metadata under dataDir, in directory
// order.
func (s *Store) List(dataDir string) ([]model.RowsetID, error) {
	entries, err := s.fsys.ReadDir(filepath.Join(dataDir, metaDirName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: list %s: %w", dataDir, err)
	}

	var ids []model.RowsetID
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "rowset_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		var id int64
		if _, err := fmt.Sscanf(name, "rowset_%d.json", &id); err != nil {
			continue
		}
		ids = append(ids, model.RowsetID(id))
	}
	return ids, nil
}
