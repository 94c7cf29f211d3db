// Package decision applies resolution policies to ranked matches and keeps
// the per-session record state machine and the reviewer queue.
package decision

import "github.com/geoproapp/geopro-server/internal/domain"

// Resolve applies policy to ranked matches. It is a pure function: when
// suspend is true the outcome is empty and a human has to decide.
//
//   - Best: the top match, or Fallback when there is none.
//   - Threshold(t): the top match when its score reaches t; Fallback when
//     there are no candidates; otherwise suspend.
//   - All: always suspend.
//
// Threshold differs from All when there are no candidates: with nothing
// to choose from, a reviewer could only confirm the original, so the
// record falls back without entering the queue.
func Resolve(ranked []domain.MatchResult, policy domain.Policy) (outcome domain.Outcome, suspend bool) {
	top, ok := domain.Top(ranked)

	switch policy.Kind {
	case domain.PolicyAll:
		return domain.Outcome{}, true
	case domain.PolicyThreshold:
		if !ok {
			return domain.Fallback(domain.ResolvedAuto), false
		}
		if top.Score >= policy.Threshold {
			return domain.Matched(top, domain.ResolvedAuto), false
		}
		return domain.Outcome{}, true
	default:
		if !ok {
			return domain.Fallback(domain.ResolvedAuto), false
		}
		return domain.Matched(top, domain.ResolvedAuto), false
	}
}

// Apply turns a reviewer decision into an outcome. presented are the
// candidates shown to the reviewer; any index outside them is invalid.
func Apply(d domain.Decision, presented []domain.MatchResult) (domain.Outcome, bool) {
	switch d.Action {
	case domain.ActionConfirmOriginal:
		return domain.Fallback(domain.ResolvedHuman), true
	case domain.ActionSelectCandidate:
		if d.CandidateIndex < 0 || d.CandidateIndex >= len(presented) {
			return domain.Outcome{}, false
		}
		return domain.Matched(presented[d.CandidateIndex], domain.ResolvedHuman), true
	default:
		return domain.Outcome{}, false
	}
}
