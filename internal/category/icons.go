package category

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// DefaultIcon is the bookmark icon used when no entry matches.
const DefaultIcon = "None"

const defaultLevel2 = "default"

// Icons maps the first two type tokens to a bookmark icon name:
//
//	amenity:
//	  cafe: Cafe
//	  default: Food
type Icons map[string]map[string]string

// ParseIcons decodes a two-level icon table.
func ParseIcons(r io.Reader) (Icons, error) {
	var icons Icons
	if err := yaml.NewDecoder(r).Decode(&icons); err != nil {
		if err == io.EOF {
			return Icons{}, nil
		}
		return nil, fmt.Errorf("decode icons: %w", err)
	}
	for level1, sub := range icons {
		if len(sub) == 0 {
			return nil, fmt.Errorf("icon group %q is empty", level1)
		}
	}
	return icons, nil
}

// Lookup finds the icon for a type. The second token falls back to the
// group's "default" entry.
func (i Icons) Lookup(typeTokens []string) (string, bool) {
	if len(typeTokens) == 0 {
		return "", false
	}
	sub, ok := i[typeTokens[0]]
	if !ok {
		return "", false
	}
	if len(typeTokens) > 1 {
		if icon, ok := sub[typeTokens[1]]; ok {
			return icon, true
		}
	}
	icon, ok := sub[defaultLevel2]
	return icon, ok
}
