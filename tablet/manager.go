package tablet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/quarrydb/quarry/model"
)

// ErrNotFound is returned when a tablet revision is not registered.
var ErrNotFound = errors.New("tablet: not found")

// ErrExists is returned when adding an already-registered revision.
var ErrExists = errors.New("tablet: already exists")

type key struct {
	id   model.TabletID
	hash model.SchemaHash
}

// Manager is the process-wide tablet directory.
type Manager struct {
	mu      sync.RWMutex
	tablets map[key]*Tablet
}

// NewManager creates an empty tablet directory.
func NewManager() *Manager {
	return &Manager{tablets: make(map[key]*Tablet)}
}

// Add registers a tablet revision.
func (m *Manager) Add(t *Tablet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{id: t.ID(), hash: t.SchemaHash()}
	if _, ok := m.tablets[k]; ok {
		return fmt.Errorf("%w: %s", ErrExists, t.FullName())
	}
	m.tablets[k] = t
	return nil
}

// Get resolves a tablet revision. Returns ErrNotFound if absent.
func (m *Manager) Get(id model.TabletID, hash model.SchemaHash) (*Tablet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tablets[key{id: id, hash: hash}]
	if !ok {
		return nil, fmt.Errorf("%w: %d.%d", ErrNotFound, id, hash)
	}
	return t, nil
}

// Len returns the number of registered tablet revisions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tablets)
}
