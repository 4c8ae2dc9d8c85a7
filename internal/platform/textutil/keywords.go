package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold lowercases the input and strips diacritical marks so that
// "Otoño" and "otono" normalise to the same keyword.
func Fold(value string) string {
	folded, _, err := transform.String(foldTransformer, strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(value))
	}
	return folded
}

// Keywords splits the inputs into folded, deduplicated search terms.
// Tokens shorter than two runes are dropped.
func Keywords(inputs ...string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, input := range inputs {
		for _, token := range strings.FieldsFunc(Fold(input), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		}) {
			if len([]rune(token)) < 2 {
				continue
			}
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			terms = append(terms, token)
		}
	}
	return terms
}
