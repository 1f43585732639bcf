package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/quarrydb/quarry/blobstore"
	"github.com/quarrydb/quarry/rowset"
)

// OffloadRowset copies a sealed rowset's segment files and metadata to
// cold storage. Blobs are keyed
// "tablet_<id>_<hash>/<segment name>" and
// "tablet_<id>_<hash>/rowset_<id>.json". The local files stay in
// place; offload is a backup/tiering copy, not a move.
func (e *StorageEngine) OffloadRowset(ctx context.Context, rs *rowset.Rowset, store blobstore.Store) error {
	meta := rs.Meta()
	prefix := fmt.Sprintf("tablet_%d_%d", meta.TabletID, meta.SchemaHash)

	for _, seg := range rs.Segments() {
		f, err := e.fsys.OpenFile(seg.Path, os.O_RDONLY, 0)
		if err != nil {
			return fmt.Errorf("engine: offload open segment %s: %w", seg.Name, err)
		}
		err = store.Put(ctx, path.Join(prefix, seg.Name), f)
		f.Close()
		if err != nil {
			return fmt.Errorf("engine: offload segment %s: %w", seg.Name, err)
		}
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("engine: offload marshal meta: %w", err)
	}
	name := path.Join(prefix, fmt.Sprintf("rowset_%d.json", meta.RowsetID))
	if err := store.Put(ctx, name, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("engine: offload meta: %w", err)
	}

	e.logger.Info("rowset offloaded",
		"rowset_id", int64(meta.RowsetID),
		"tablet_id", int64(meta.TabletID),
		"segments", len(rs.Segments()))
	return nil
}
