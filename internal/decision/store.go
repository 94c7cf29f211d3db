package decision

import (
	"context"

	"github.com/geoproapp/geopro-server/internal/domain"
)

// QueueOp is the reviewer queue change that accompanies an entry update.
type QueueOp int

// Queue operations.
const (
	QueueNone QueueOp = iota
	// QueuePush appends the record to the tail.
	QueuePush
	// QueueRemove drops the record from the queue.
	QueueRemove
	// QueueRequeue moves the record to the tail.
	QueueRequeue
)

// Change is one state transition of a record. Stores apply it atomically.
type Change struct {
	Entry domain.RecordEntry
	Queue QueueOp
}

// Store persists session state so that review can resume after a restart.
type Store interface {
	Apply(ctx context.Context, sessionID string, c Change) error
}

// MemoryStore keeps nothing; used by sessions that are not persisted.
type MemoryStore struct{}

// Apply does nothing.
func (MemoryStore) Apply(context.Context, string, Change) error { return nil }
