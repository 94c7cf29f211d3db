// Package category maps resolved places to target-application categories and
// bookmark icons. The mapping is data: MapCSS type rules, a two-level icon
// table and a hint table, loaded from files or from the embedded defaults.
package category

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"slices"
	"strings"
)

//go:embed defaults/*
var defaults embed.FS

const (
	defaultRulesFile = "defaults/mapcss-mapping.csv"
	defaultIconsFile = "defaults/bookmark_icons.yaml"
	defaultHintsFile = "defaults/hints.yaml"
)

// Sources names the files a Table is loaded from. Empty paths use the
// embedded defaults.
type Sources struct {
	RulesPath string
	IconsPath string
	HintsPath string
}

// Paths returns the non-empty file paths.
func (s Sources) Paths() []string {
	var out []string
	for _, p := range []string{s.RulesPath, s.IconsPath, s.HintsPath} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Table is an immutable, versioned category mapping.
type Table struct {
	version string
	rules   []TypeRule
	icons   Icons
	hints   Hints
}

// Classification is the result of classifying a tag set.
type Classification struct {
	CategoryID string
	IconID     string
	Types      []string
	// IconFound is false when the category has no icon entry.
	IconFound bool
}

// Load reads a table from src.
func Load(src Sources) (*Table, error) {
	rulesData, err := readSource(src.RulesPath, defaultRulesFile)
	if err != nil {
		return nil, err
	}
	iconsData, err := readSource(src.IconsPath, defaultIconsFile)
	if err != nil {
		return nil, err
	}
	hintsData, err := readSource(src.HintsPath, defaultHintsFile)
	if err != nil {
		return nil, err
	}
	return parseTable(rulesData, iconsData, hintsData)
}

// Default returns the table built from the embedded defaults.
func Default() (*Table, error) {
	return Load(Sources{})
}

func readSource(path, fallback string) ([]byte, error) {
	if path == "" {
		return defaults.ReadFile(fallback)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category table %s: %w", path, err)
	}
	return data, nil
}

func parseTable(rulesData, iconsData, hintsData []byte) (*Table, error) {
	rules, err := ParseRules(bytes.NewReader(rulesData))
	if err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	icons, err := ParseIcons(bytes.NewReader(iconsData))
	if err != nil {
		return nil, err
	}
	hints, err := ParseHints(bytes.NewReader(hintsData))
	if err != nil {
		return nil, err
	}

	h := sha256.New()
	for _, part := range [][]byte{rulesData, iconsData, hintsData} {
		h.Write(part)
		h.Write([]byte{0})
	}

	return &Table{
		version: hex.EncodeToString(h.Sum(nil))[:12],
		rules:   rules,
		icons:   icons,
		hints:   hints,
	}, nil
}

// Version identifies the table contents.
func (t *Table) Version() string {
	return t.version
}

// RuleCount returns the number of type rules.
func (t *Table) RuleCount() int {
	return len(t.rules)
}

// Types returns the category IDs matching tags, reduced to the longest
// types, in rule order.
func (t *Table) Types(tags map[string]string) [][]string {
	if len(tags) == 0 {
		return nil
	}
	var matched [][]string
	for _, r := range t.rules {
		if r.Rule.Matches(tags) {
			matched = append(matched, r.Type)
		}
	}
	return LeaveLongestTypes(matched)
}

// Classify picks the first matching type that has an icon, or the first
// matching type when none has one.
func (t *Table) Classify(tags map[string]string) (Classification, bool) {
	types := t.Types(tags)
	if len(types) == 0 {
		return Classification{}, false
	}

	cls := Classification{
		CategoryID: JoinType(types[0]),
		IconID:     DefaultIcon,
		Types:      UniqueTypeIDs(types),
	}
	for _, typ := range types {
		if icon, ok := t.icons.Lookup(typ); ok {
			cls.CategoryID = JoinType(typ)
			cls.IconID = icon
			cls.IconFound = true
			break
		}
	}
	return cls, true
}

// HintPatterns returns the tag patterns a hint implies: the hint table entry
// when present, otherwise the tags of rules whose type ends with the hint.
func (t *Table) HintPatterns(hint string) []Tag {
	h := NormalizeHint(hint)
	if h == "" {
		return nil
	}
	if patterns, ok := t.hints[h]; ok {
		return patterns
	}

	var patterns []Tag
	for _, r := range t.rules {
		if r.Type[len(r.Type)-1] != h {
			continue
		}
		for _, tag := range r.Rule.Tags {
			if !slices.Contains(patterns, tag) {
				patterns = append(patterns, tag)
			}
		}
	}
	return patterns
}

// HintTags converts a hint into a tag set suitable for Classify, using the
// first pattern. A wildcard pattern becomes key=yes.
func (t *Table) HintTags(hint string) map[string]string {
	patterns := t.HintPatterns(hint)
	if len(patterns) == 0 {
		return nil
	}
	p := patterns[0]
	if p.Value == "*" {
		return map[string]string{p.Key: "yes"}
	}
	return map[string]string{p.Key: p.Value}
}

// Compatibility rates how well tags agree with hint: an exact pattern match
// scores 1, the right key with another value 0.5, no related tag 0. Hints the
// table cannot interpret are unknown unless a tag value equals the hint.
func (t *Table) Compatibility(hint string, tags map[string]string) (float64, bool) {
	h := NormalizeHint(hint)
	if h == "" {
		return 0, false
	}

	patterns := t.HintPatterns(h)
	if len(patterns) == 0 {
		for _, v := range tags {
			if strings.EqualFold(v, h) {
				return 1, true
			}
		}
		return 0, false
	}

	exact, sameKey := tagsSatisfy(patterns, tags)
	switch {
	case exact:
		return 1, true
	case sameKey:
		return 0.5, true
	default:
		return 0, true
	}
}
