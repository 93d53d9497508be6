package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeTitle reduces a title to its comparison form: case-folded,
// diacritics stripped, punctuation replaced by spaces and whitespace collapsed.
func NormalizeTitle(title string) string {
	folded := folder.String(CleanTitle(title))

	stripped, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), folded)
	if err != nil {
		stripped = folded
	}

	var b strings.Builder
	b.Grow(len(stripped))

	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}

		b.WriteRune(' ')
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// CleanTitle unescapes HTML entities and collapses whitespace, keeping case.
func CleanTitle(title string) string {
	return strings.Join(strings.Fields(html.UnescapeString(title)), " ")
}

// TitleTokens returns the distinct tokens of a normalized title in first-seen order.
func TitleTokens(normalized string) []string {
	fields := strings.Fields(normalized)
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))

	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}

		seen[f] = struct{}{}
		out = append(out, f)
	}

	return out
}
