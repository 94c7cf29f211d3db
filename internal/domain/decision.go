package domain

// DecisionAction is the reviewer's answer to a decision request.
type DecisionAction string

// The only valid reviewer answers.
const (
	ActionSelectCandidate DecisionAction = "select"
	ActionConfirmOriginal DecisionAction = "original"
)

// Decision is a reviewer response for one suspended record.
type Decision struct {
	Action         DecisionAction `json:"action"`
	CandidateIndex int            `json:"candidate_index,omitempty"`
}

// SelectCandidate picks the i-th ranked candidate.
func SelectCandidate(i int) Decision {
	return Decision{Action: ActionSelectCandidate, CandidateIndex: i}
}

// ConfirmOriginal keeps the source record as is.
func ConfirmOriginal() Decision {
	return Decision{Action: ActionConfirmOriginal}
}

// DecisionRequest is what the reviewer sees for a suspended record.
type DecisionRequest struct {
	SessionID  string        `json:"session_id"`
	Record     SourceRecord  `json:"record"`
	Candidates []MatchResult `json:"candidates"`
	// Remaining counts queued requests including this one.
	Remaining int `json:"remaining"`
}
