package decision

import "github.com/geoproapp/geopro-server/internal/domain"

// EventType identifies a session state change.
type EventType string

// Event types.
const (
	EventRecordResolved  EventType = "record.resolved"
	EventRecordSuspended EventType = "record.suspended"
	EventRecordRejected  EventType = "record.rejected"
	EventRecordSkipped   EventType = "record.skipped"
)

// Event is emitted after a state change has been persisted.
type Event struct {
	Type      EventType           `json:"type"`
	SessionID string              `json:"session_id"`
	RecordID  string              `json:"record_id"`
	Outcome   *domain.Outcome     `json:"outcome,omitempty"`
	Stats     domain.SessionStats `json:"stats"`
	// Queued is the reviewer queue length after the change.
	Queued int `json:"queued"`
}

// Listener receives events. It is called outside the session lock and must
// not block for long.
type Listener func(Event)
