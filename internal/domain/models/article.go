package models

import (
	"strings"
	"time"
)

// Article is a news item as delivered by a NewsProvider. It is never persisted.
type Article struct {
	Symbols     []string  `json:"symbols"` // relevance tags from the provider
	Headline    string    `json:"headline"`
	Body        string    `json:"body"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// Text joins headline and body for scoring.
func (a Article) Text() string {
	if a.Body == "" {
		return a.Headline
	}
	if a.Headline == "" {
		return a.Body
	}
	return a.Headline + ". " + a.Body
}

// TaggedWith reports whether the provider tagged the article with symbol.
func (a Article) TaggedWith(symbol string) bool {
	for _, s := range a.Symbols {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}
