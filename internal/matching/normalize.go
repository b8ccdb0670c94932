package matching

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nameReplacer makes "Joe's" equal "Joes" and "Bar & Grill" equal "Bar and Grill".
var nameReplacer = strings.NewReplacer("&", " and ", "'", "", "’", "")

// Normalize folds a venue name into its matching key: accents stripped,
// lower-cased, punctuation removed and whitespace collapsed.
func Normalize(name string) string {
	// Transformers carry state, so the chain is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = nameReplacer.Replace(strings.ToLower(folded))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
			continue
		}
		pendingSpace = b.Len() > 0
	}
	return b.String()
}

// tokenSort returns the words of a normalised name in lexical order,
// so "cafe blue door" and "blue door cafe" compare equal.
func tokenSort(normalized string) string {
	fields := strings.Fields(normalized)
	sort.Strings(fields)
	return strings.Join(fields, " ")
}
