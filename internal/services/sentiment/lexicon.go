package sentiment

import (
	"context"
	"math"
	"strings"

	"PaperDesk/internal/domain/models"
	domsvc "PaperDesk/internal/domain/service"
)

// financeTerms weights market vocabulary by how strongly it moves sentiment.
var financeTerms = map[string]float64{
	// positive
	"beat": 1.0, "beats": 1.0, "surge": 1.2, "surged": 1.2, "surges": 1.2, "soar": 1.3, "soared": 1.3,
	"rally": 1.0, "rallied": 1.0, "gain": 0.7, "gains": 0.7, "growth": 0.8, "profit": 0.8, "profits": 0.8,
	"profitable": 0.9, "upgrade": 1.1, "upgraded": 1.1, "outperform": 1.0, "bullish": 1.2, "record": 0.6,
	"exceed": 0.9, "exceeded": 0.9, "exceeds": 0.9, "strong": 0.7, "stronger": 0.8, "robust": 0.8,
	"raise": 0.5, "raised": 0.6, "dividend": 0.4, "buyback": 0.6, "expansion": 0.6, "momentum": 0.5,
	"breakthrough": 1.0, "optimistic": 0.9, "rebound": 0.8, "recovery": 0.7, "approval": 0.8, "approved": 0.8,
	// negative
	"miss": -1.0, "missed": -1.0, "misses": -1.0, "plunge": -1.3, "plunged": -1.3, "plunges": -1.3,
	"slump": -1.1, "slumped": -1.1, "drop": -0.7, "dropped": -0.8, "decline": -0.8, "declined": -0.8,
	"loss": -0.9, "losses": -0.9, "downgrade": -1.1, "downgraded": -1.1, "underperform": -1.0,
	"bearish": -1.2, "lawsuit": -0.9, "probe": -0.7, "investigation": -0.8, "fraud": -1.5, "recall": -0.8,
	"weak": -0.7, "weaker": -0.8, "layoffs": -0.9, "bankruptcy": -1.6, "default": -1.2, "warning": -0.8,
	"cut": -0.6, "cuts": -0.6, "slowdown": -0.8, "volatile": -0.4, "selloff": -1.1, "sell-off": -1.1,
	"fine": -0.5, "fined": -0.8, "penalty": -0.8, "halt": -0.9, "halted": -0.9, "concern": -0.5,
	"concerns": -0.5, "pessimistic": -0.9, "shortfall": -1.0, "writedown": -1.0, "dilution": -0.7,
}

// LexiconAnalyzer scores text against a finance-specific word list.
type LexiconAnalyzer struct {
	terms map[string]float64
}

func NewLexiconAnalyzer() *LexiconAnalyzer {
	return &LexiconAnalyzer{terms: financeTerms}
}

func (a *LexiconAnalyzer) Name() string { return "finance_lexicon" }

func (a *LexiconAnalyzer) Analyze(_ context.Context, text string) (models.Polarity, error) {
	var (
		sum, abs float64
		hits     int
	)
	for _, tok := range tokenize(text) {
		w, ok := a.terms[strings.Trim(tok, "'")]
		if !ok {
			continue
		}
		sum += w
		abs += math.Abs(w)
		hits++
	}
	if hits == 0 {
		return models.Polarity{Score: 0, Confidence: 0.1}, nil
	}
	score := clamp(sum/abs, -1, 1)
	// more matched terms and less disagreement between them raise confidence
	agreement := math.Abs(sum) / abs
	coverage := math.Min(float64(hits)/5, 1)
	conf := clamp(0.2+0.4*coverage+0.4*agreement*coverage, 0.1, 1)
	return models.Polarity{Score: score, Confidence: conf}, nil
}

var _ domsvc.PolarityAnalyzer = (*LexiconAnalyzer)(nil)
