package domain

// ScoreBreakdown holds the per-factor sub-scores of a MatchResult, each in
// [0,1], plus the measured distance.
type ScoreBreakdown struct {
	Spatial        float64 `json:"spatial"`
	Name           float64 `json:"name"`
	Category       float64 `json:"category"`
	DistanceMeters float64 `json:"distance_m"`
}

// MatchResult pairs a candidate with its composite score for one record.
type MatchResult struct {
	Candidate Candidate      `json:"candidate"`
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// Top returns the highest ranked match of an already ranked slice.
func Top(ranked []MatchResult) (MatchResult, bool) {
	if len(ranked) == 0 {
		return MatchResult{}, false
	}
	return ranked[0], true
}
