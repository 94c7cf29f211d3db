package category

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Tag is one OSM key=value pair required by a rule.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Rule is a MapCSS selector: required tags, keys that must be present with
// a value other than "no", and keys that must be absent or "no".
type Rule struct {
	Tags      []Tag    `json:"tags"`
	Mandatory []string `json:"mandatory,omitempty"`
	Forbidden []string `json:"forbidden,omitempty"`
}

// Matches reports whether tags satisfy the rule.
func (r Rule) Matches(tags map[string]string) bool {
	for _, t := range r.Tags {
		if v, ok := tags[t.Key]; !ok || v != t.Value {
			return false
		}
	}
	for _, k := range r.Mandatory {
		if v, ok := tags[k]; !ok || v == "no" {
			return false
		}
	}
	for _, k := range r.Forbidden {
		if v, ok := tags[k]; ok && v != "no" {
			return false
		}
	}
	return true
}

// TypeRule binds a classificator type (e.g. ["amenity", "cafe"]) to a rule.
type TypeRule struct {
	Type []string
	Rule Rule
}

// ParseRules reads a mapcss-mapping CSV. Fields are separated by ';'. Lines
// with 3 fields and an empty third field use the short form "key|value";
// lines with 7 fields carry a type and a comma-separated selector list,
// skipped when the third field is "x" (deprecated). Comments start with '#'.
func ParseRules(r io.Reader) ([]TypeRule, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var rules []TypeRule
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rules: %w", err)
		}
		line, _ := cr.FieldPos(0)

		first := strings.TrimSpace(fields[0])
		if first == "" || strings.HasPrefix(first, "#") {
			continue
		}

		switch {
		case len(fields) == 3:
			if fields[2] != "" {
				continue
			}
			rule, err := parseShort(first)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			rules = append(rules, rule)
		case len(fields) == 7:
			if strings.TrimSpace(fields[2]) == "x" {
				continue
			}
			parsed, err := parseFull(first, fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			rules = append(rules, parsed...)
		default:
			return nil, fmt.Errorf("line %d: unexpected number of fields (%d)", line, len(fields))
		}
	}
	return rules, nil
}

func parseShort(typeString string) (TypeRule, error) {
	tokens := strings.Split(typeString, "|")
	if len(tokens) != 2 {
		return TypeRule{}, fmt.Errorf("invalid short type string %q", typeString)
	}
	return TypeRule{
		Type: tokens,
		Rule: Rule{Tags: []Tag{{Key: tokens[0], Value: tokens[1]}}},
	}, nil
}

func parseFull(typeString, selectors string) ([]TypeRule, error) {
	selectors = strings.TrimSpace(selectors)
	if typeString == "" || selectors == "" {
		return nil, errors.New("empty type string or selectors")
	}
	typeTokens := strings.Split(typeString, "|")

	var out []TypeRule
	for _, sel := range strings.Split(selectors, ",") {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		rule, err := parseSelector(sel)
		if err != nil {
			return nil, err
		}
		out = append(out, TypeRule{Type: typeTokens, Rule: rule})
	}
	return out, nil
}

// parseSelector parses "[amenity=cafe][!disused][cuisine?]".
func parseSelector(sel string) (Rule, error) {
	if !strings.HasPrefix(sel, "[") || !strings.HasSuffix(sel, "]") {
		return Rule{}, fmt.Errorf("invalid selector %q", sel)
	}

	var rule Rule
	parts := strings.FieldsFunc(sel, func(r rune) bool { return r == '[' || r == ']' })
	for _, part := range parts {
		kv := strings.Split(part, "=")
		switch len(kv) {
		case 1:
			key := strings.Trim(kv[0], "?!")
			if strings.HasPrefix(kv[0], "!") {
				rule.Forbidden = append(rule.Forbidden, key)
			} else {
				rule.Mandatory = append(rule.Mandatory, key)
			}
		case 2:
			rule.Tags = append(rule.Tags, Tag{Key: kv[0], Value: kv[1]})
		default:
			return Rule{}, fmt.Errorf("invalid tag %q in selector %q", part, sel)
		}
	}
	return rule, nil
}
