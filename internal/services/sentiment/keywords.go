package sentiment

import "strings"

// DefaultKeywords is the vocabulary an article must touch to count as market news.
var DefaultKeywords = []string{
	"earnings", "revenue", "profit", "loss", "guidance", "forecast", "outlook",
	"dividend", "buyback", "acquisition", "merger", "ipo", "shares", "stock",
	"analyst", "upgrade", "downgrade", "price target", "valuation", "margin",
	"sales", "quarter", "quarterly", "growth", "investors", "market", "trading",
	"sec", "lawsuit", "layoffs", "bankruptcy", "debt",
}

// MentionsAny reports whether text contains at least one keyword. Single words
// must match a whole token; phrases match as a case-insensitive substring.
func MentionsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	words := make(map[string]struct{})
	for _, t := range tokenize(text) {
		words[strings.Trim(t, "'-")] = struct{}{}
	}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if strings.Contains(k, " ") {
			if strings.Contains(lower, k) {
				return true
			}
			continue
		}
		if _, ok := words[k]; ok {
			return true
		}
	}
	return false
}
