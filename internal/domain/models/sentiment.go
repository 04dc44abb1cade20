package models

import "time"

// ClassificationBand separates positive/negative articles from neutral ones.
const ClassificationBand = 0.05

// Polarity is one analyzer's opinion of a piece of text.
type Polarity struct {
	Score      float64 `json:"score"`      // [-1, 1]
	Confidence float64 `json:"confidence"` // (0, 1]
}

// SentimentRecord is an immutable snapshot of aggregated sentiment for a symbol.
type SentimentRecord struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	OverallScore float64   `json:"overall_score"`
	Confidence   float64   `json:"confidence"`
	ArticleCount int       `json:"article_count"`
	Positive     int       `json:"positive"`
	Negative     int       `json:"negative"`
	Neutral      int       `json:"neutral"`
	AsOf         time.Time `json:"as_of"`
	CreatedAt    time.Time `json:"created_at"`
}

// Classify labels an article-level ensemble score.
func Classify(score float64) string {
	switch {
	case score > ClassificationBand:
		return "positive"
	case score < -ClassificationBand:
		return "negative"
	default:
		return "neutral"
	}
}
