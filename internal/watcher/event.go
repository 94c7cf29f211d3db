package watcher

import "time"

// EventType represents the type of file system event.
type EventType int

const (
	// EventWritten is emitted when a watched file was created or rewritten
	// and has settled.
	EventWritten EventType = iota
	// EventRemoved is emitted when a watched file disappears.
	EventRemoved
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventWritten:
		return "written"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event represents a settled file system change.
type Event struct {
	Type    EventType
	Path    string
	Size    int64
	ModTime time.Time
}
