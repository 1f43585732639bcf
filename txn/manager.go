// Package txn tracks prepared load transactions.
//
// A transaction record marks a pending load for one tablet revision. It
// exists from prepare until the external commit path or the writer's
// cleanup deletes it. The registry is a process-wide service created by
// the engine; an optional RecordStore persists records for recovery.
package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quarrydb/quarry/model"
)

// ErrConflict is returned when a transaction key is already prepared.
// The first prepare for a key wins; any later prepare for the same key
// is a conflict, never a silent re-registration.
var ErrConflict = errors.New("txn: transaction already prepared")

// Key identifies a prepared transaction.
type Key struct {
	PartitionID model.PartitionID
	TxnID       model.TxnID
	TabletID    model.TabletID
	SchemaHash  model.SchemaHash
}

func (k Key) String() string {
	return fmt.Sprintf("txn(partition=%d txn=%d tablet=%d.%d)",
		k.PartitionID, k.TxnID, k.TabletID, k.SchemaHash)
}

// ErrNotPrepared is returned when committing a key with no record.
var ErrNotPrepared = errors.New("txn: transaction not prepared")

// State is the lifecycle state of a transaction record.
type State int

const (
	// StatePending marks a prepared load awaiting commit.
	StatePending State = iota
	// StateCommitted marks a load whose writer closed successfully.
	StateCommitted
)

// Record is a pending-load marker.
type Record struct {
	Key        Key
	LoadID     model.LoadID
	State      State
	PreparedAt time.Time
}

// Manager is the in-process transaction registry. Safe for concurrent
// use by many writers targeting the same tablet.
type Manager struct {
	mu      sync.RWMutex
	records map[Key]Record
	store   RecordStore
}

// NewManager creates a registry. store may be nil, in which case
// records live only in process memory.
func NewManager(store RecordStore) *Manager {
	if store == nil {
		store = NoopStore{}
	}
	return &Manager{
		records: make(map[Key]Record),
		store:   store,
	}
}

// Prepare registers a transaction. Returns ErrConflict if the key is
// already prepared, regardless of the load id; re-registration is an
// error, not a no-op.
func (m *Manager) Prepare(ctx context.Context, key Key, loadID model.LoadID) error {
	m.mu.Lock()
	if _, ok := m.records[key]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConflict, key)
	}
	rec := Record{Key: key, LoadID: loadID, State: StatePending, PreparedAt: time.Now()}
	m.records[key] = rec
	m.mu.Unlock()

	if err := m.store.Put(ctx, rec); err != nil {
		m.mu.Lock()
		delete(m.records, key)
		m.mu.Unlock()
		return fmt.Errorf("txn: persist record %s: %w", key, err)
	}
	return nil
}

// Commit marks a prepared transaction committed. The record stays in
// the registry for inspection but no longer counts as pending, and its
// durable pending marker is removed since the load needs no recovery.
func (m *Manager) Commit(ctx context.Context, key Key) error {
	m.mu.Lock()
	rec, ok := m.records[key]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotPrepared, key)
	}
	rec.State = StateCommitted
	m.records[key] = rec
	m.mu.Unlock()

	if err := m.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("txn: drop pending marker %s: %w", key, err)
	}
	return nil
}

// Delete removes a transaction record. Deleting an absent key is a
// no-op so cleanup stays idempotent.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	m.mu.Lock()
	_, ok := m.records[key]
	delete(m.records, key)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if err := m.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("txn: delete record %s: %w", key, err)
	}
	return nil
}

// Get returns the record for key, if prepared.
func (m *Manager) Get(key Key) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	return rec, ok
}

// Pending reports whether key has a prepared, uncommitted record.
func (m *Manager) Pending(key Key) bool {
	rec, ok := m.Get(key)
	return ok && rec.State == StatePending
}

// PendingCount returns the number of uncommitted transactions.
func (m *Manager) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.records {
		if rec.State == StatePending {
			n++
		}
	}
	return n
}
