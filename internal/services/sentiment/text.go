package sentiment

import (
	"strings"
	"unicode"
)

// tokenize lower-cases text and splits it into word tokens. Apostrophes are
// kept so contractions such as "didn't" stay whole; "!" survives as its own token.
func tokenize(text string) []string {
	var (
		tokens []string
		b      strings.Builder
	)
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-':
			b.WriteRune(r)
		case r == '!':
			flush()
			tokens = append(tokens, "!")
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// ContainsWord reports whether word appears in text as a whole token, ignoring case.
func ContainsWord(text, word string) bool {
	word = strings.ToLower(word)
	for _, t := range tokenize(text) {
		if strings.Trim(t, "'-") == word {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
