package export

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

var markupPattern = regexp.MustCompile(`(?i)<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6])[\s>/]`)

// notesToMarkdown converts scraped HTML notes to Markdown. Plain text and
// notes that fail to convert are returned unchanged.
func notesToMarkdown(s string) string {
	if s == "" || !markupPattern.MatchString(s) {
		return s
	}
	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(md)
}
