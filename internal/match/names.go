package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// abbreviations expands common short forms found in saved-place names and
// OSM name tags. Keys and values are already folded.
var abbreviations = map[string]string{
	"st":     "street",
	"str":    "strasse",
	"ave":    "avenue",
	"av":     "avenue",
	"rd":     "road",
	"dr":     "drive",
	"blvd":   "boulevard",
	"ln":     "lane",
	"pl":     "place",
	"sq":     "square",
	"hwy":    "highway",
	"mt":     "mount",
	"ft":     "fort",
	"ctr":    "center",
	"centre": "center",
	"intl":   "international",
	"univ":   "university",
	"hosp":   "hospital",
	"natl":   "national",
	"caffe":  "cafe",
	"cafes":  "cafe",
	"ste":    "sainte",
	"co":     "company",
	"bros":   "brothers",
	"n":      "north",
	"s":      "south",
	"e":      "east",
	"w":      "west",
}

// stopwords carry no identifying signal in place names.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "and": {},
	"der": {}, "die": {}, "das": {}, "le": {}, "la": {}, "les": {}, "el": {},
}

// Fold lower-cases s, strips diacritics and maps ß to ss, so "Old Mill Café"
// and "old mill cafe" compare equal.
func Fold(s string) string {
	s = norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r == 'ß':
			b.WriteString("ss")
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Tokens folds a name and splits it into expanded, stopword-free tokens.
// Apostrophes are dropped inside words ("Joe's" becomes "joes") and "&"
// reads as "and".
func Tokens(name string) []string {
	folded := Fold(strings.ReplaceAll(name, "&", " and "))
	folded = strings.NewReplacer("'", "", "’", "").Replace(folded)

	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := fields[:0]
	for _, f := range fields {
		if full, ok := abbreviations[f]; ok {
			f = full
		}
		if _, skip := stopwords[f]; skip {
			continue
		}
		out = append(out, f)
	}
	return out
}

// NameSimilarity compares two place names in [0,1]. It takes the best of
// token-set agreement (Dice), character-level edit similarity, and token
// containment ("Starbucks" inside "Starbucks Coffee"). An empty name on
// either side scores 0.
func NameSimilarity(a, b string) float64 {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	best := dice(ta, tb)
	if lev := editSimilarity(strings.Join(ta, " "), strings.Join(tb, " ")); lev > best {
		best = lev
	}
	if c := containment(ta, tb); c > best {
		best = c
	}
	return clamp01(best)
}

func dice(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	shared := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(setA)+len(setB))
}

// containment is 0.8 when every token of the shorter name appears in the
// longer one, 0 otherwise.
func containment(a, b []string) float64 {
	short, long := toSet(a), toSet(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	for t := range short {
		if _, ok := long[t]; !ok {
			return 0
		}
	}
	return 0.8
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// editSimilarity is 1 - levenshtein/maxLen over runes.
func editSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
