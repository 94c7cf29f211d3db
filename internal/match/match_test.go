package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoproapp/geopro-server/internal/domain"
)

// fakeOracle knows "cafe" -> amenity=cafe only.
type fakeOracle struct{}

func (fakeOracle) Compatibility(hint string, tags map[string]string) (float64, bool) {
	if Fold(hint) != "cafe" {
		return 0, false
	}
	switch v, ok := tags["amenity"]; {
	case ok && v == "cafe":
		return 1, true
	case ok:
		return 0.5, true
	default:
		return 0, true
	}
}

func oldMillRecord() domain.SourceRecord {
	return domain.SourceRecord{
		ID:           "rec-1",
		ListName:     "Zurich",
		DisplayName:  "Old Mill Cafe",
		Coordinates:  domain.Coordinates{Lat: 47.37, Lon: 8.54},
		CategoryHint: "cafe",
	}
}

func oldMillCandidate() domain.Candidate {
	return domain.Candidate{
		ExternalID:  "1001",
		Kind:        domain.KindNode,
		Name:        "Old Mill Café",
		Coordinates: domain.Coordinates{Lat: 47.3701, Lon: 8.5401},
		Tags:        map[string]string{"amenity": "cafe", "name": "Old Mill Café"},
	}
}

func TestScore_OldMillCafeScoresAboveNinety(t *testing.T) {
	s := NewScorer(DefaultOptions(), fakeOracle{})

	res := s.Score(oldMillRecord(), oldMillCandidate())

	assert.Greater(t, res.Score, 0.9)
	assert.Equal(t, 1.0, res.Breakdown.Name)
	assert.Equal(t, 1.0, res.Breakdown.Category)
	assert.InDelta(t, 13.4, res.Breakdown.DistanceMeters, 1.0)
	assert.Greater(t, res.Breakdown.Spatial, 0.98)
}

func TestScore_Deterministic(t *testing.T) {
	s := NewScorer(DefaultOptions(), fakeOracle{})
	first := s.Score(oldMillRecord(), oldMillCandidate())
	for range 50 {
		assert.Equal(t, first, s.Score(oldMillRecord(), oldMillCandidate()))
	}
}

func TestScore_MissingCandidateNameScoresZeroName(t *testing.T) {
	s := NewScorer(DefaultOptions(), fakeOracle{})
	c := oldMillCandidate()
	c.Name = ""

	res := s.Score(oldMillRecord(), c)
	assert.Equal(t, 0.0, res.Breakdown.Name)
}

func TestScore_MissingHintIsNeutral(t *testing.T) {
	opts := DefaultOptions()
	s := NewScorer(opts, fakeOracle{})

	rec := oldMillRecord()
	rec.CategoryHint = ""
	assert.Equal(t, opts.NeutralCategory, s.Score(rec, oldMillCandidate()).Breakdown.Category)

	rec.CategoryHint = "spaceport"
	assert.Equal(t, opts.NeutralCategory, s.Score(rec, oldMillCandidate()).Breakdown.Category)

	noOracle := NewScorer(opts, nil)
	assert.Equal(t, opts.NeutralCategory, noOracle.Score(oldMillRecord(), oldMillCandidate()).Breakdown.Category)
}

func TestScore_CategoryPartialAndMismatch(t *testing.T) {
	s := NewScorer(DefaultOptions(), fakeOracle{})

	partial := oldMillCandidate()
	partial.Tags = map[string]string{"amenity": "restaurant"}
	assert.Equal(t, 0.5, s.Score(oldMillRecord(), partial).Breakdown.Category)

	none := oldMillCandidate()
	none.Tags = map[string]string{"shop": "bakery"}
	assert.Equal(t, 0.0, s.Score(oldMillRecord(), none).Breakdown.Category)
}

func TestScore_BeyondCutoffHasNoSpatialCredit(t *testing.T) {
	s := NewScorer(DefaultOptions(), fakeOracle{})
	far := oldMillCandidate()
	far.Coordinates = domain.Coordinates{Lat: 47.40, Lon: 8.54}

	res := s.Score(oldMillRecord(), far)
	assert.Equal(t, 0.0, res.Breakdown.Spatial)
	assert.Greater(t, res.Breakdown.DistanceMeters, 3000.0)
}

func TestRank_OrdersByScoreThenShapeThenOrder(t *testing.T) {
	s := NewScorer(DefaultOptions(), nil)
	rec := oldMillRecord()
	rec.CategoryHint = ""

	same := func(id string, kind domain.FeatureKind, tags map[string]string, order int) domain.Candidate {
		c := oldMillCandidate()
		c.ExternalID = id
		c.Kind = kind
		c.Tags = tags
		c.Order = order
		return c
	}
	worse := oldMillCandidate()
	worse.ExternalID = "9"
	worse.Name = "Mill Bakery"
	worse.Order = 0

	cands := []domain.Candidate{
		worse,
		same("line", domain.KindWay, map[string]string{"highway": "footway"}, 1),
		same("area", domain.KindWay, map[string]string{"building": "yes"}, 2),
		same("point-late", domain.KindNode, nil, 4),
		same("point-early", domain.KindNode, nil, 3),
	}

	ranked := s.Rank(rec, cands)
	require.Len(t, ranked, 5)

	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.Candidate.ExternalID
	}
	assert.Equal(t, []string{"point-early", "point-late", "area", "line", "9"}, ids)
}

func TestRank_Empty(t *testing.T) {
	s := NewScorer(DefaultOptions(), nil)
	assert.Empty(t, s.Rank(oldMillRecord(), nil))
}

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"Old Mill Cafe", "Old Mill Café", 1, 1},
		{"OLD MILL CAFE", "old mill cafe", 1, 1},
		{"Main St Diner", "Main Street Diner", 1, 1},
		{"Joe's Pizza", "Joes Pizza", 1, 1},
		{"Café Schwarzenbach", "Cafe Schwarzenbach", 1, 1},
		{"Bäckerei Müller", "Backerei Muller", 1, 1},
		{"Starbucks", "Starbucks Coffee", 0.8, 0.8},
		{"Old Mill Cafe", "Mill Bakery", 0.1, 0.6},
		{"Old Mill Cafe", "", 0, 0},
		{"", "", 0, 0},
		{"Zoo", "Hauptbahnhof", 0, 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			got := NameSimilarity(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
		})
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"joes", "fish", "chips"}, Tokens("Joe's Fish & Chips"))
	assert.Equal(t, []string{"strasse"}, Tokens("Straße"))
	assert.Equal(t, []string{"mount", "rainier", "center"}, Tokens("The Mt. Rainier Centre"))
}

func TestHaversine(t *testing.T) {
	equator := Haversine(domain.Coordinates{Lat: 0, Lon: 0}, domain.Coordinates{Lat: 0, Lon: 1})
	assert.InDelta(t, 111195, equator, 1)

	assert.Equal(t, 0.0, Haversine(domain.Coordinates{Lat: 47.37, Lon: 8.54}, domain.Coordinates{Lat: 47.37, Lon: 8.54}))
}

func TestProximity(t *testing.T) {
	assert.Equal(t, 1.0, proximity(0, 1000))
	assert.InDelta(t, 0.5, proximity(500, 1000), 1e-9)
	assert.Equal(t, 0.0, proximity(1000, 1000))
	assert.Equal(t, 0.0, proximity(5000, 1000))
	assert.Equal(t, 0.0, proximity(10, 0))
}
