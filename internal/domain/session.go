package domain

import "time"

// SessionStatus is the lifecycle of a matching session.
type SessionStatus string

// Session statuses.
const (
	SessionRunning   SessionStatus = "running"
	SessionReviewing SessionStatus = "reviewing"
	SessionReady     SessionStatus = "ready"
	SessionFinalized SessionStatus = "finalized"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the session can no longer change status.
func (s SessionStatus) Terminal() bool {
	return s == SessionFinalized || s == SessionCancelled
}

// Session is one migration run over a set of source records.
type Session struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Policy    Policy        `json:"policy"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SessionStats summarizes record states and outcomes.
type SessionStats struct {
	Total             int     `json:"total"`
	Pending           int     `json:"pending"`
	Scored            int     `json:"scored"`
	Matched           int     `json:"matched"`
	Fallback          int     `json:"fallback"`
	Rejected          int     `json:"rejected"`
	RetrievalFailures int     `json:"retrieval_failures"`
	AverageScore      float64 `json:"average_score"`
}

// Resolved is the number of records with a final outcome.
func (s SessionStats) Resolved() int {
	return s.Matched + s.Fallback
}

// Tally computes statistics over record entries.
func Tally(entries []RecordEntry) SessionStats {
	var st SessionStats
	var sum float64
	for i := range entries {
		e := &entries[i]
		st.Total++
		if e.RetrievalError != "" {
			st.RetrievalFailures++
		}
		switch e.State {
		case StatePending:
			st.Pending++
		case StateScored:
			st.Scored++
		case StateRejected:
			st.Rejected++
		case StateResolved:
			if e.Outcome != nil && e.Outcome.IsMatched() {
				st.Matched++
				sum += e.Outcome.Score
			} else {
				st.Fallback++
			}
		}
	}
	if st.Matched > 0 {
		st.AverageScore = sum / float64(st.Matched)
	}
	return st
}
