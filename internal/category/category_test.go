package category

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoproapp/geopro-server/internal/domain"
	"github.com/geoproapp/geopro-server/internal/logger"
)

func defaultMapper(t *testing.T) *Mapper {
	t.Helper()
	table, err := Default()
	require.NoError(t, err)
	return NewMapper(table, logger.Discard())
}

func matchedWith(tags map[string]string) domain.Outcome {
	return domain.Matched(domain.MatchResult{
		Candidate: domain.Candidate{ExternalID: "42", Kind: domain.KindNode, Name: "Somewhere", Tags: tags},
		Score:     0.93,
	}, domain.ResolvedAuto)
}

func TestParseRules(t *testing.T) {
	csv := strings.Join([]string{
		"# type;selectors;;name;int_name;priority;",
		"amenity|cafe;23;",
		"amenity|place_of_worship|christian;[amenity=place_of_worship][religion=christian];;name;int_name;42;",
		"amenity|vending_machine|coffee;[amenity=vending_machine][vending=coffee];x;name;int_name;52;",
		"building;[building][!building:part],[building:part?];;name;int_name;120;",
		"",
	}, "\n")

	rules, err := ParseRules(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rules, 4)

	assert.Equal(t, []string{"amenity", "cafe"}, rules[0].Type)
	assert.Equal(t, []Tag{{Key: "amenity", Value: "cafe"}}, rules[0].Rule.Tags)

	assert.Equal(t, []string{"amenity", "place_of_worship", "christian"}, rules[1].Type)
	assert.Len(t, rules[1].Rule.Tags, 2)

	assert.Equal(t, []string{"building"}, rules[2].Type)
	assert.Equal(t, []string{"building"}, rules[2].Rule.Mandatory)
	assert.Equal(t, []string{"building:part"}, rules[2].Rule.Forbidden)
	assert.Equal(t, []string{"building:part"}, rules[3].Rule.Mandatory)
}

func TestParseRules_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"wrong field count", "amenity|cafe;23;;x\n"},
		{"bad short type", "amenity;23;\n"},
		{"bad selector", "amenity|cafe;amenity=cafe;;name;int_name;1;\n"},
		{"bad tag", "amenity|cafe;[amenity=cafe=x];;name;int_name;1;\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules(strings.NewReader(tt.csv))
			assert.Error(t, err)
		})
	}
}

func TestRule_Matches(t *testing.T) {
	rule := Rule{
		Tags:      []Tag{{Key: "amenity", Value: "cafe"}},
		Mandatory: []string{"cuisine"},
		Forbidden: []string{"disused"},
	}

	tests := []struct {
		name string
		tags map[string]string
		want bool
	}{
		{"all satisfied", map[string]string{"amenity": "cafe", "cuisine": "coffee_shop"}, true},
		{"forbidden set to no", map[string]string{"amenity": "cafe", "cuisine": "x", "disused": "no"}, true},
		{"wrong value", map[string]string{"amenity": "bar", "cuisine": "x"}, false},
		{"mandatory missing", map[string]string{"amenity": "cafe"}, false},
		{"mandatory is no", map[string]string{"amenity": "cafe", "cuisine": "no"}, false},
		{"forbidden present", map[string]string{"amenity": "cafe", "cuisine": "x", "disused": "yes"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rule.Matches(tt.tags))
		})
	}
}

func TestLeaveLongestTypes(t *testing.T) {
	tests := []struct {
		name string
		in   [][]string
		want [][]string
	}{
		{
			name: "longer type replaces prefix",
			in:   [][]string{{"amenity", "place_of_worship"}, {"amenity", "place_of_worship", "christian"}, {"building"}},
			want: [][]string{{"amenity", "place_of_worship", "christian"}, {"building"}},
		},
		{
			name: "shorter type after longer is dropped",
			in:   [][]string{{"shop", "bakery"}, {"shop"}},
			want: [][]string{{"shop", "bakery"}},
		},
		{
			name: "equal length siblings are kept",
			in:   [][]string{{"a", "b", "c"}, {"a", "b", "d"}},
			want: [][]string{{"a", "b", "c"}, {"a", "b", "d"}},
		},
		{
			name: "unrelated types are kept",
			in:   [][]string{{"amenity", "cafe"}, {"building"}},
			want: [][]string{{"amenity", "cafe"}, {"building"}},
		},
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LeaveLongestTypes(tt.in))
		})
	}
}

func TestUniqueTypeIDs(t *testing.T) {
	got := UniqueTypeIDs([][]string{{"amenity", "cafe"}, {"building"}, {"amenity", "cafe"}})
	assert.Equal(t, []string{"amenity-cafe", "building"}, got)
}

func TestIcons(t *testing.T) {
	icons, err := ParseIcons(strings.NewReader("amenity:\n  cafe: Cafe\n  default: Food\nbuilding:\n  default: Building\n"))
	require.NoError(t, err)

	icon, ok := icons.Lookup([]string{"amenity", "cafe"})
	assert.True(t, ok)
	assert.Equal(t, "Cafe", icon)

	icon, ok = icons.Lookup([]string{"amenity", "restaurant"})
	assert.True(t, ok)
	assert.Equal(t, "Food", icon)

	icon, ok = icons.Lookup([]string{"building"})
	assert.True(t, ok)
	assert.Equal(t, "Building", icon)

	_, ok = icons.Lookup([]string{"highway", "primary"})
	assert.False(t, ok)

	_, err = ParseIcons(strings.NewReader("amenity: {}\n"))
	assert.Error(t, err)
}

func TestParseHints(t *testing.T) {
	hints, err := ParseHints(strings.NewReader("hints:\n  Coffee Shop: [amenity=cafe, shop=coffee]\n"))
	require.NoError(t, err)
	assert.Equal(t, []Tag{{"amenity", "cafe"}, {"shop", "coffee"}}, hints["coffee_shop"])

	_, err = ParseHints(strings.NewReader("hints:\n  cafe: [amenity]\n"))
	assert.Error(t, err)
}

func TestNormalizeHint(t *testing.T) {
	assert.Equal(t, "coffee_shop", NormalizeHint("  Coffee Shop "))
	assert.Equal(t, "coffee_shop", NormalizeHint("coffee-shop"))
	assert.Equal(t, "cafe", NormalizeHint("Café"))
	assert.Equal(t, "", NormalizeHint("   "))
}

func TestCompatibility(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name      string
		hint      string
		tags      map[string]string
		wantScore float64
		wantKnown bool
	}{
		{"exact", "cafe", map[string]string{"amenity": "cafe"}, 1, true},
		{"second pattern", "Coffee shop", map[string]string{"shop": "coffee"}, 1, true},
		{"same key other value", "cafe", map[string]string{"amenity": "restaurant"}, 0.5, true},
		{"unrelated", "cafe", map[string]string{"tourism": "hotel"}, 0, true},
		{"derived from rules", "books", map[string]string{"shop": "books"}, 1, true},
		{"wildcard", "store", map[string]string{"shop": "anything"}, 1, true},
		{"empty hint", "", map[string]string{"amenity": "cafe"}, 0, false},
		{"unknown hint with matching value", "zorbing", map[string]string{"sport": "zorbing"}, 1, true},
		{"unknown hint", "zorbing", map[string]string{"amenity": "cafe"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, known := table.Compatibility(tt.hint, tt.tags)
			assert.Equal(t, tt.wantKnown, known)
			assert.InDelta(t, tt.wantScore, score, 1e-9)
		})
	}
}

func TestMapper_Map(t *testing.T) {
	m := defaultMapper(t)

	tests := []struct {
		name       string
		outcome    domain.Outcome
		hint       string
		wantCat    string
		wantIcon   string
		wantMiss   bool
		wantKind   MissKind
		wantMissed string
	}{
		{
			name:     "fallback from cafe hint",
			outcome:  domain.Fallback(domain.ResolvedAuto),
			hint:     "cafe",
			wantCat:  "amenity-cafe",
			wantIcon: "Cafe",
		},
		{
			name:     "matched cafe",
			outcome:  matchedWith(map[string]string{"amenity": "cafe", "name": "Old Mill Café"}),
			wantCat:  "amenity-cafe",
			wantIcon: "Cafe",
		},
		{
			name:     "longest type wins",
			outcome:  matchedWith(map[string]string{"amenity": "place_of_worship", "religion": "christian"}),
			wantCat:  "amenity-place_of_worship-christian",
			wantIcon: "Building",
		},
		{
			name:     "rule order picks first type",
			outcome:  matchedWith(map[string]string{"shop": "bakery", "building": "yes"}),
			wantCat:  "shop-bakery",
			wantIcon: "Food",
		},
		{
			name:     "fallback hint derived from rule type",
			outcome:  domain.Fallback(domain.ResolvedHuman),
			hint:     "Books",
			wantCat:  "shop-books",
			wantIcon: "Shop",
		},
		{
			name:     "wildcard hint",
			outcome:  domain.Fallback(domain.ResolvedHuman),
			hint:     "Store",
			wantCat:  "shop",
			wantIcon: "Shop",
		},
		{
			name:     "unmapped tags rescued by hint",
			outcome:  matchedWith(map[string]string{"highway": "residential"}),
			hint:     "bakery",
			wantCat:  "shop-bakery",
			wantIcon: "Food",
		},
		{
			name:       "unmapped tags",
			outcome:    matchedWith(map[string]string{"highway": "residential", "name": "Main St"}),
			wantCat:    UnspecifiedCategory,
			wantIcon:   UnspecifiedIcon,
			wantMiss:   true,
			wantKind:   MissTags,
			wantMissed: "highway=residential",
		},
		{
			name:       "unknown hint",
			outcome:    domain.Fallback(domain.ResolvedAuto),
			hint:       "Unicorn Stable",
			wantCat:    UnspecifiedCategory,
			wantIcon:   UnspecifiedIcon,
			wantMiss:   true,
			wantKind:   MissHint,
			wantMissed: "unicorn_stable",
		},
		{
			name:     "no hint is not a miss",
			outcome:  domain.Fallback(domain.ResolvedAuto),
			wantCat:  UnspecifiedCategory,
			wantIcon: UnspecifiedIcon,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := domain.SourceRecord{ID: "rec-1", ListName: "Zurich", DisplayName: "Place", CategoryHint: tt.hint}
			a := m.Map(tt.outcome, rec)

			assert.Equal(t, tt.wantCat, a.CategoryID)
			assert.Equal(t, tt.wantIcon, a.IconID)
			assert.Equal(t, tt.wantMiss, a.Miss)
			assert.Equal(t, m.Table().Version(), a.Version)
			if tt.wantMiss {
				assert.Equal(t, tt.wantKind, a.MissKind)
				assert.Equal(t, tt.wantMissed, a.MissKey)
			}
		})
	}
}

func TestMapper_IconMiss(t *testing.T) {
	dir := t.TempDir()
	src := writeSources(t, dir, "amenity|library;1;\n", "amenity:\n  cafe: Cafe\n", "hints: {}\n")
	table, err := Load(src)
	require.NoError(t, err)

	m := NewMapper(table, logger.Discard())
	a := m.Map(matchedWith(map[string]string{"amenity": "library"}), domain.SourceRecord{ID: "r"})

	assert.Equal(t, "amenity-library", a.CategoryID)
	assert.Equal(t, DefaultIcon, a.IconID)
	assert.True(t, a.Miss)
	assert.Equal(t, MissIcon, a.MissKind)
}

func TestMapper_ExportRecord(t *testing.T) {
	m := defaultMapper(t)
	misses := NewMissReport()

	rec := domain.SourceRecord{
		ID:           "rec-1",
		ListName:     "Zurich",
		DisplayName:  "Old Mill Cafe",
		Coordinates:  domain.Coordinates{Lat: 47.37, Lon: 8.54},
		CategoryHint: "cafe",
		Notes:        "try the cake",
		Seq:          3,
	}
	out := m.ExportRecord(rec, matchedWith(map[string]string{"amenity": "cafe"}), misses)
	assert.Equal(t, "Somewhere", out.DisplayName)
	assert.Equal(t, "amenity-cafe", out.CategoryID)
	assert.Equal(t, "node/42", out.Source)
	assert.Equal(t, domain.OutcomeMatched, out.Outcome)
	assert.Equal(t, 3, out.Seq)
	assert.Equal(t, 0, misses.Len())

	rec.CategoryHint = "unicorn stable"
	out = m.ExportRecord(rec, domain.Fallback(domain.ResolvedHuman), misses)
	assert.Equal(t, "Old Mill Cafe", out.DisplayName)
	assert.Equal(t, rec.Coordinates, out.Coordinates)
	assert.Equal(t, UnspecifiedCategory, out.CategoryID)
	assert.Empty(t, out.Source)

	snap := misses.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, MissHint, snap[0].Kind)
	assert.Equal(t, []string{"rec-1"}, snap[0].RecordIDs)
}

func TestMissReport(t *testing.T) {
	r := NewMissReport()
	r.Add(MissHint, "unicorn_stable", "a")
	r.Add(MissTags, "highway=residential", "b")
	r.Add(MissTags, "highway=residential", "c")
	r.Add(MissTags, "highway=residential", "c")

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "highway=residential", snap[0].Key)
	assert.Equal(t, 3, snap[0].Count)
	assert.Equal(t, []string{"b", "c"}, snap[0].RecordIDs)
	assert.Equal(t, 1, snap[1].Count)
}

func TestLoad_VersionTracksContent(t *testing.T) {
	dir := t.TempDir()
	src := writeSources(t, dir, "amenity|cafe;1;\n", "amenity:\n  cafe: Cafe\n", "hints: {}\n")

	first, err := Load(src)
	require.NoError(t, err)
	again, err := Load(src)
	require.NoError(t, err)
	assert.Equal(t, first.Version(), again.Version())

	require.NoError(t, os.WriteFile(src.RulesPath, []byte("amenity|cafe;1;\namenity|bar;2;\n"), 0o644))
	changed, err := Load(src)
	require.NoError(t, err)
	assert.NotEqual(t, first.Version(), changed.Version())
	assert.Equal(t, 2, changed.RuleCount())

	_, err = Load(Sources{RulesPath: filepath.Join(dir, "missing.csv")})
	assert.Error(t, err)
}

func TestWatch_ReloadsTable(t *testing.T) {
	dir := t.TempDir()
	src := writeSources(t, dir, "amenity|cafe;1;\n", "amenity:\n  cafe: Cafe\n", "hints: {}\n")
	table, err := Load(src)
	require.NoError(t, err)
	m := NewMapper(table, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, m, src, logger.Discard()) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(src.HintsPath, []byte("hints:\n  coffee: [amenity=cafe]\n"), 0o644))

	assert.Eventually(t, func() bool {
		return m.Table().Version() != table.Version()
	}, 3*time.Second, 20*time.Millisecond)

	a := m.Map(domain.Fallback(domain.ResolvedAuto), domain.SourceRecord{CategoryHint: "coffee"})
	assert.Equal(t, "amenity-cafe", a.CategoryID)

	cancel()
	assert.NoError(t, <-done)
}

func writeSources(t *testing.T, dir, rules, icons, hints string) Sources {
	t.Helper()
	src := Sources{
		RulesPath: filepath.Join(dir, "mapcss-mapping.csv"),
		IconsPath: filepath.Join(dir, "bookmark_icons.yaml"),
		HintsPath: filepath.Join(dir, "hints.yaml"),
	}
	require.NoError(t, os.WriteFile(src.RulesPath, []byte(rules), 0o644))
	require.NoError(t, os.WriteFile(src.IconsPath, []byte(icons), 0o644))
	require.NoError(t, os.WriteFile(src.HintsPath, []byte(hints), 0o644))
	return src
}

func TestMapper_SetOnSwap(t *testing.T) {
	m := defaultMapper(t)

	var got string
	m.SetOnSwap(func(t *Table) { got = t.Version() })

	dir := t.TempDir()
	next, err := Load(writeSources(t, dir, "amenity|bar;1;\n", "amenity:\n  bar: Bar\n", "hints: {}\n"))
	require.NoError(t, err)

	m.Swap(next)
	assert.Equal(t, next.Version(), got)
}
