package overpass

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/geoproapp/geopro-server/internal/domain"
)

var wordPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)?`)

// NameWords extracts the words of a display name used to narrow the search.
// Apostrophes inside a word are kept; duplicates are dropped.
func NameWords(name string) []string {
	seen := make(map[string]struct{})
	var words []string
	for _, w := range wordPattern.FindAllString(name, -1) {
		lw := strings.ToLower(w)
		if _, dup := seen[lw]; dup {
			continue
		}
		seen[lw] = struct{}{}
		words = append(words, w)
	}
	return words
}

// Query is an Overpass QL proximity search.
type Query struct {
	Center     domain.Coordinates
	Radius     int
	Words      []string
	MaxResults int
	// Timeout is the server-side budget in seconds.
	Timeout int
}

// NewQuery builds the proximity query for rec.
func NewQuery(rec domain.SourceRecord, radius, maxResults, timeout int) Query {
	return Query{
		Center:     rec.Coordinates,
		Radius:     radius,
		Words:      NameWords(rec.DisplayName),
		MaxResults: maxResults,
		Timeout:    timeout,
	}
}

// String renders the query in Overpass QL. Nodes, ways and relations whose
// name matches any word (case-insensitively) within Radius metres are
// returned; ways and relations with their center.
func (q Query) String() string {
	filter := `["name"]`
	if len(q.Words) > 0 {
		quoted := make([]string, len(q.Words))
		for i, w := range q.Words {
			quoted[i] = escapeValue(regexp.QuoteMeta(w))
		}
		filter = fmt.Sprintf(`["name"~"%s",i]`, strings.Join(quoted, "|"))
	}

	around := fmt.Sprintf("(around:%d,%s,%s)",
		q.Radius,
		strconv.FormatFloat(q.Center.Lat, 'f', 7, 64),
		strconv.FormatFloat(q.Center.Lon, 'f', 7, 64),
	)

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", q.Timeout)
	for _, kind := range []domain.FeatureKind{domain.KindNode, domain.KindWay, domain.KindRelation} {
		fmt.Fprintf(&b, "  %s%s%s;\n", kind, filter, around)
	}
	b.WriteString(");\nout center")
	if q.MaxResults > 0 {
		fmt.Fprintf(&b, " %d", q.MaxResults)
	}
	b.WriteString(";")
	return b.String()
}

func escapeValue(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
