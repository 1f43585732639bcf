package txn

import "context"

// RecordStore persists transaction records outside process memory so a
// restarted node can find loads that were pending at crash time.
//
// DynamoStore is the remote implementation; NoopStore keeps the exact
// same registry semantics without persistence.
type RecordStore interface {
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, key Key) error
}

// NoopStore implements RecordStore with no persistence.
type NoopStore struct{}

func (NoopStore) Put(context.Context, Record) error { return nil }
func (NoopStore) Delete(context.Context, Key) error { return nil }
