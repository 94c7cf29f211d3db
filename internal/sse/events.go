// Package sse implements Server-Sent Events that notify reviewers about
// session progress and new decision requests.
package sse

import (
	"time"

	"github.com/geoproapp/geopro-server/internal/decision"
	"github.com/geoproapp/geopro-server/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventRecordResolved: a record reached an outcome, automatically or by decision.
	EventRecordResolved EventType = "record.resolved"
	// EventDecisionRequested: a record was queued for review.
	EventDecisionRequested EventType = "decision.requested"
	// EventRecordRejected: a malformed record was rejected.
	EventRecordRejected EventType = "record.rejected"
	// EventRecordSkipped: a reviewer deferred a record.
	EventRecordSkipped EventType = "record.skipped"

	EventSessionStarted   EventType = "session.started"
	EventSessionReviewing EventType = "session.reviewing"
	EventSessionReady     EventType = "session.ready"
	EventSessionFinalized EventType = "session.finalized"
	EventSessionCancelled EventType = "session.cancelled"

	// EventCategoriesReloaded: the category tables were swapped.
	EventCategoriesReloaded EventType = "categories.reloaded"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	// ID increases by one per broadcast event. Heartbeats carry no ID.
	ID        uint64    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
	// SessionID scopes the event; empty means every client receives it.
	SessionID string `json:"session_id,omitempty"`
}

// RecordEventData is the payload of record events.
type RecordEventData struct {
	RecordID string              `json:"record_id"`
	Outcome  *domain.Outcome     `json:"outcome,omitempty"`
	Stats    domain.SessionStats `json:"stats"`
	Queued   int                 `json:"queued"`
}

// SessionEventData is the payload of session lifecycle events.
type SessionEventData struct {
	Session *domain.Session      `json:"session"`
	Stats   *domain.SessionStats `json:"stats,omitempty"`
}

// CategoriesEventData is the payload of EventCategoriesReloaded.
type CategoriesEventData struct {
	Version string `json:"version"`
	Rules   int    `json:"rules"`
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	return Event{Type: EventHeartbeat, Timestamp: time.Now()}
}

// NewDecisionEvent converts a decision engine event.
func NewDecisionEvent(e decision.Event) Event {
	t := EventRecordResolved
	switch e.Type {
	case decision.EventRecordSuspended:
		t = EventDecisionRequested
	case decision.EventRecordRejected:
		t = EventRecordRejected
	case decision.EventRecordSkipped:
		t = EventRecordSkipped
	}
	return Event{
		Type:      t,
		SessionID: e.SessionID,
		Timestamp: time.Now(),
		Data: RecordEventData{
			RecordID: e.RecordID,
			Outcome:  e.Outcome,
			Stats:    e.Stats,
			Queued:   e.Queued,
		},
	}
}

// NewSessionEvent creates a session lifecycle event from its status.
func NewSessionEvent(sess *domain.Session, stats *domain.SessionStats) Event {
	t := EventSessionStarted
	switch sess.Status {
	case domain.SessionReviewing:
		t = EventSessionReviewing
	case domain.SessionReady:
		t = EventSessionReady
	case domain.SessionFinalized:
		t = EventSessionFinalized
	case domain.SessionCancelled:
		t = EventSessionCancelled
	}
	return Event{
		Type:      t,
		SessionID: sess.ID,
		Timestamp: time.Now(),
		Data:      SessionEventData{Session: sess, Stats: stats},
	}
}

// NewCategoriesEvent announces a category table reload.
func NewCategoriesEvent(version string, rules int) Event {
	return Event{
		Type:      EventCategoriesReloaded,
		Timestamp: time.Now(),
		Data:      CategoriesEventData{Version: version, Rules: rules},
	}
}
