package domain

// OutcomeKind is the terminal resolution of a source record.
type OutcomeKind string

// Outcome kinds.
const (
	OutcomeMatched  OutcomeKind = "matched"
	OutcomeFallback OutcomeKind = "fallback"
)

// Resolver says who produced an outcome.
type Resolver string

// Outcome resolvers.
const (
	ResolvedAuto  Resolver = "auto"
	ResolvedHuman Resolver = "human"
)

// Outcome is either Matched(candidate, score) or Fallback(original).
type Outcome struct {
	Kind      OutcomeKind `json:"kind"`
	Candidate *Candidate  `json:"candidate,omitempty"`
	Score     float64     `json:"score"`
	By        Resolver    `json:"by"`
}

// Matched builds a matched outcome.
func Matched(m MatchResult, by Resolver) Outcome {
	c := m.Candidate
	return Outcome{Kind: OutcomeMatched, Candidate: &c, Score: m.Score, By: by}
}

// Fallback builds a fallback outcome.
func Fallback(by Resolver) Outcome {
	return Outcome{Kind: OutcomeFallback, By: by}
}

// IsMatched reports whether a candidate was accepted.
func (o Outcome) IsMatched() bool {
	return o.Kind == OutcomeMatched && o.Candidate != nil
}

// Position returns the candidate position when matched, the record's own
// coordinates otherwise.
func (o Outcome) Position(rec SourceRecord) Coordinates {
	if o.IsMatched() {
		return o.Candidate.Coordinates
	}
	return rec.Coordinates
}

// Name returns the candidate name when matched and named, the record's
// display name otherwise.
func (o Outcome) Name(rec SourceRecord) string {
	if o.IsMatched() && o.Candidate.Name != "" {
		return o.Candidate.Name
	}
	return rec.DisplayName
}
