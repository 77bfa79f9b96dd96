package browser

import (
	"strings"
	"unicode"
)

var whitespaceReplacer = strings.NewReplacer(
	" ", " ", // NBSP
	"\n", " ",
	"\r", " ",
	"\t", " ",
)

// NormalizeTargetText cleans the phrase scraped from the page so the typed
// input matches what the test grades against. It folds whitespace and merges
// runs of single-letter tokens that come from per-letter DOM splits (e.g.
// "t r u t h" becomes "truth") while preserving genuine one-letter words
// ("I have" stays intact).
func NormalizeTargetText(raw string) string {
	text := whitespaceReplacer.Replace(raw)
	tokens := strings.Fields(text)

	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		if !isSingleLetter(tokens[i]) {
			out = append(out, tokens[i])
			i++
			continue
		}
		// Gather the consecutive run of single-letter tokens.
		j := i
		for j < len(tokens) && isSingleLetter(tokens[j]) {
			j++
		}
		if j-i >= 2 {
			out = append(out, strings.Join(tokens[i:j], ""))
		} else {
			out = append(out, tokens[i])
		}
		i = j
	}
	return strings.Join(out, " ")
}

func isSingleLetter(tok string) bool {
	runes := []rune(tok)
	return len(runes) == 1 && unicode.IsLetter(runes[0])
}
