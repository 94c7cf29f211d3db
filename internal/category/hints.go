package category

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/geoproapp/geopro-server/internal/match"
)

// Hints maps normalized category hints to the OSM tags they imply.
// A pattern value of "*" accepts any value for the key.
type Hints map[string][]Tag

type hintsFile struct {
	Hints map[string][]string `yaml:"hints"`
}

// ParseHints decodes a hints table:
//
//	hints:
//	  coffee_shop: [amenity=cafe, shop=coffee]
func ParseHints(r io.Reader) (Hints, error) {
	var f hintsFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if err == io.EOF {
			return Hints{}, nil
		}
		return nil, fmt.Errorf("decode hints: %w", err)
	}

	hints := make(Hints, len(f.Hints))
	for hint, patterns := range f.Hints {
		key := NormalizeHint(hint)
		if key == "" {
			return nil, fmt.Errorf("empty hint name %q", hint)
		}
		for _, p := range patterns {
			k, v, ok := strings.Cut(p, "=")
			if !ok || k == "" || v == "" {
				return nil, fmt.Errorf("hint %q: invalid pattern %q", hint, p)
			}
			hints[key] = append(hints[key], Tag{Key: strings.TrimSpace(k), Value: strings.TrimSpace(v)})
		}
	}
	return hints, nil
}

// NormalizeHint folds a free-text hint into the OSM value style:
// "Coffee Shop" and "coffee-shop" both become "coffee_shop".
func NormalizeHint(hint string) string {
	folded := match.Fold(strings.TrimSpace(hint))
	return strings.Join(strings.FieldsFunc(folded, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '/'
	}), "_")
}

func tagsSatisfy(patterns []Tag, tags map[string]string) (exact, sameKey bool) {
	for _, p := range patterns {
		v, ok := tags[p.Key]
		if !ok {
			continue
		}
		if p.Value == "*" || v == p.Value {
			return true, true
		}
		sameKey = true
	}
	return false, sameKey
}
