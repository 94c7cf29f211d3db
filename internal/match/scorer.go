// Package match scores retrieved candidates against a source record and
// ranks them.
package match

import (
	"cmp"
	"slices"

	"github.com/geoproapp/geopro-server/internal/domain"
)

// Weights are the fixed linear weights of the three score factors. They are
// normalized by their sum, so only their ratios matter.
type Weights struct {
	Name     float64 `json:"name"`
	Spatial  float64 `json:"spatial"`
	Category float64 `json:"category"`
}

// Options configures a Scorer. Every session carries its own copy.
type Options struct {
	Weights Weights `json:"weights"`
	// DistanceCutoff is the distance in metres at which proximity reaches 0.
	DistanceCutoff float64 `json:"distance_cutoff"`
	// NeutralCategory is the category factor used when the record has no
	// usable hint.
	NeutralCategory float64 `json:"neutral_category"`
}

// DefaultOptions returns the tuned defaults: name 0.5, spatial 0.3,
// category 0.2, 1 km cutoff, neutral category 0.5.
func DefaultOptions() Options {
	return Options{
		Weights:         Weights{Name: 0.5, Spatial: 0.3, Category: 0.2},
		DistanceCutoff:  1000,
		NeutralCategory: 0.5,
	}
}

// CategoryOracle rates how well OSM tags agree with a free-text category
// hint. known is false when the hint carries no usable signal.
type CategoryOracle interface {
	Compatibility(hint string, tags map[string]string) (score float64, known bool)
}

// Scorer computes composite match scores. It holds no mutable state and is
// safe for concurrent use.
type Scorer struct {
	opts       Options
	categories CategoryOracle
}

// NewScorer creates a scorer. A nil oracle makes the category factor always
// neutral.
func NewScorer(opts Options, categories CategoryOracle) *Scorer {
	return &Scorer{opts: opts, categories: categories}
}

// Options returns the scorer's configuration.
func (s *Scorer) Options() Options {
	return s.opts
}

// Score computes the MatchResult of one candidate for rec.
func (s *Scorer) Score(rec domain.SourceRecord, cand domain.Candidate) domain.MatchResult {
	distance := Haversine(rec.Coordinates, cand.Coordinates)

	b := domain.ScoreBreakdown{
		Spatial:        proximity(distance, s.opts.DistanceCutoff),
		Name:           NameSimilarity(rec.DisplayName, cand.Name),
		Category:       s.category(rec.CategoryHint, cand.Tags),
		DistanceMeters: distance,
	}

	return domain.MatchResult{
		Candidate: cand,
		Score:     s.combine(b),
		Breakdown: b,
	}
}

// Rank scores all candidates and orders them by descending score. Ties go
// to the preferred shape (point, then area, then line) and then to the
// earlier retrieval order.
func (s *Scorer) Rank(rec domain.SourceRecord, cands []domain.Candidate) []domain.MatchResult {
	ranked := make([]domain.MatchResult, 0, len(cands))
	for _, c := range cands {
		ranked = append(ranked, s.Score(rec, c))
	}
	SortRanked(ranked)
	return ranked
}

// SortRanked orders match results by score, shape preference and retrieval
// order.
func SortRanked(ranked []domain.MatchResult) {
	slices.SortStableFunc(ranked, func(a, b domain.MatchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Candidate.Shape(), b.Candidate.Shape()); c != 0 {
			return c
		}
		return cmp.Compare(a.Candidate.Order, b.Candidate.Order)
	})
}

func (s *Scorer) category(hint string, tags map[string]string) float64 {
	if hint == "" || s.categories == nil {
		return clamp01(s.opts.NeutralCategory)
	}
	score, known := s.categories.Compatibility(hint, tags)
	if !known {
		return clamp01(s.opts.NeutralCategory)
	}
	return clamp01(score)
}

func (s *Scorer) combine(b domain.ScoreBreakdown) float64 {
	w := s.opts.Weights
	total := w.Name + w.Spatial + w.Category
	if total <= 0 {
		return 0
	}
	return clamp01((w.Name*b.Name + w.Spatial*b.Spatial + w.Category*b.Category) / total)
}
