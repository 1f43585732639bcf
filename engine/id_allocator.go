package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/quarrydb/quarry/internal/fs"
	"github.com/quarrydb/quarry/model"
)

// ErrIDAllocation is returned when a rowset id cannot be reserved.
// Allocation consumes no other resources, so the caller may retry with
// a new writer.
var ErrIDAllocation = errors.New("engine: rowset id allocation failed")

// idBatchSize is how many ids one durable bump reserves. Ids within a
// batch are handed out from memory; a crash burns the unused remainder,
// which only costs id space.
const idBatchSize = 1000

const idFileName = "rowset_id"

type idRange struct {
	next model.RowsetID
	end  model.RowsetID // exclusive
}

// IDAllocator mints rowset ids scoped to a storage directory. Ids are
// unique and monotonic per directory, across restarts.
type IDAllocator struct {
	fsys fs.FileSystem

	mu     sync.Mutex
	ranges map[string]*idRange
}

// NewIDAllocator creates an allocator on fsys (fs.Default when nil).
func NewIDAllocator(fsys fs.FileSystem) *IDAllocator {
	if fsys == nil {
		fsys = fs.Default
	}
	return &IDAllocator{
		fsys:   fsys,
		ranges: make(map[string]*idRange),
	}
}

// Next reserves the next rowset id for dataDir.
func (a *IDAllocator) Next(dataDir string) (model.RowsetID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.ranges[dataDir]
	if !ok || r.next >= r.end {
		nr, err := a.reserveBatch(dataDir)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrIDAllocation, err)
		}
		a.ranges[dataDir] = nr
		r = nr
	}

	id := r.next
	r.next++
	return id, nil
}

// reserveBatch durably advances the persisted high watermark by
// idBatchSize and returns the reserved range.
func (a *IDAllocator) reserveBatch(dataDir string) (*idRange, error) {
	if err := a.fsys.MkdirAll(filepath.Join(dataDir, "meta"), 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dataDir, "meta", idFileName)

	var start model.RowsetID = 1
	data, err := fs.ReadFile(a.fsys, path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse id watermark: %w", err)
		}
		start = model.RowsetID(v)
	}

	end := start + idBatchSize
	if err := fs.WriteFileAtomic(a.fsys, path, []byte(strconv.FormatInt(int64(end), 10)), 0644); err != nil {
		return nil, err
	}
	return &idRange{next: start, end: end}, nil
}
