package domain

// RecordState tracks a record through the decision state machine:
// pending -> scored -> resolved. Malformed records go to rejected.
type RecordState string

// Record states.
const (
	StatePending  RecordState = "pending"
	StateScored   RecordState = "scored"
	StateResolved RecordState = "resolved"
	StateRejected RecordState = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s RecordState) Terminal() bool {
	return s == StateResolved || s == StateRejected
}

// RecordEntry is the persisted view of one record within a session.
type RecordEntry struct {
	Record         SourceRecord  `json:"record"`
	State          RecordState   `json:"state"`
	Matches        []MatchResult `json:"matches,omitempty"`
	Outcome        *Outcome      `json:"outcome,omitempty"`
	RejectedReason string        `json:"rejected_reason,omitempty"`
	RetrievalError string        `json:"retrieval_error,omitempty"`
}
