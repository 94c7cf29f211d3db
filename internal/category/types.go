package category

import "strings"

// TypeSeparator joins type tokens into a category ID.
const TypeSeparator = "-"

// JoinType renders ["amenity", "cafe"] as "amenity-cafe".
func JoinType(tokens []string) string {
	return strings.Join(tokens, TypeSeparator)
}

// LeaveLongestTypes drops a matched type when another matched type shares
// its leading tokens (the first two, or one for single-token types) and is
// longer. Equal-length types sharing a prefix are all kept. Order of the
// survivors follows the input.
func LeaveLongestTypes(matched [][]string) [][]string {
	var result [][]string
	for _, t := range matched {
		keep := true
		kept := result[:0:0]
		for _, existing := range result {
			if !equalPrefix(t, existing) {
				kept = append(kept, existing)
				continue
			}
			switch {
			case len(t) > len(existing):
				// existing is shorter, drop it
			case len(t) < len(existing):
				keep = false
				kept = append(kept, existing)
			default:
				kept = append(kept, existing)
			}
		}
		result = kept
		if keep {
			result = append(result, t)
		}
	}
	return result
}

func equalPrefix(a, b []string) bool {
	n := min(2, min(len(a), len(b)))
	for i := range n {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// UniqueTypeIDs joins each type and removes duplicates, keeping first
// occurrence order.
func UniqueTypeIDs(types [][]string) []string {
	seen := make(map[string]struct{}, len(types))
	out := make([]string, 0, len(types))
	for _, t := range types {
		id := JoinType(t)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
