package sentiment

import (
	"context"
	"math"
	"strings"

	"PaperDesk/internal/domain/models"
	domsvc "PaperDesk/internal/domain/service"
)

// General-purpose valence scores on a -4..+4 scale.
var valenceTerms = map[string]float64{
	"good": 1.9, "great": 3.1, "excellent": 3.2, "positive": 2.3, "best": 3.2, "better": 1.9,
	"happy": 2.7, "impressive": 2.8, "solid": 1.6, "success": 2.7, "successful": 2.8, "win": 2.8,
	"wins": 2.7, "improve": 1.9, "improved": 2.1, "improving": 1.8, "confident": 2.2, "encouraging": 2.4,
	"favorable": 2.1, "healthy": 1.7, "promising": 2.2, "benefit": 2.0, "opportunity": 1.8, "upbeat": 2.1,
	"bad": -2.5, "terrible": -3.4, "awful": -3.1, "poor": -2.1, "negative": -2.7, "worst": -3.1,
	"worse": -2.1, "fail": -2.5, "failed": -2.3, "failure": -2.6, "disappointing": -2.6, "disappoint": -2.0,
	"risk": -1.1, "risky": -1.4, "fear": -2.2, "fears": -2.2, "crisis": -3.1, "trouble": -2.1,
	"struggle": -2.0, "struggling": -2.1, "uncertain": -1.2, "uncertainty": -1.4, "threat": -2.4, "worry": -1.9,
	"worried": -1.8, "hurt": -2.4, "damage": -2.2, "collapse": -3.0, "panic": -2.8, "angry": -2.3,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "none": true, "nor": true, "neither": true, "without": true,
	"isn't": true, "wasn't": true, "aren't": true, "don't": true, "doesn't": true, "didn't": true,
	"won't": true, "can't": true, "cannot": true, "couldn't": true, "hasn't": true, "haven't": true,
}

var boosters = map[string]float64{
	"very": 0.293, "extremely": 0.293, "highly": 0.293, "significantly": 0.293, "sharply": 0.293,
	"strongly": 0.293, "hugely": 0.293, "substantially": 0.293, "slightly": -0.293, "marginally": -0.293,
	"somewhat": -0.293, "barely": -0.293,
}

const (
	negationScalar = -0.74
	normAlpha      = 15.0
	exclaimBoost   = 0.292
)

// ValenceAnalyzer is a rule-based scorer that handles negation, intensifiers,
// contrastive "but" and exclamation emphasis over a general lexicon.
type ValenceAnalyzer struct {
	terms map[string]float64
}

func NewValenceAnalyzer() *ValenceAnalyzer {
	return &ValenceAnalyzer{terms: valenceTerms}
}

func (a *ValenceAnalyzer) Name() string { return "valence" }

func (a *ValenceAnalyzer) Analyze(_ context.Context, text string) (models.Polarity, error) {
	tokens := tokenize(text)
	valences := make([]float64, 0, len(tokens))
	butAt := -1
	exclaims := 0

	for i, tok := range tokens {
		if tok == "!" {
			exclaims++
			continue
		}
		if tok == "but" && butAt < 0 {
			butAt = len(valences)
		}
		v, ok := a.terms[strings.Trim(tok, "'")]
		if !ok {
			valences = append(valences, 0)
			continue
		}
		// look back up to three tokens for intensifiers and negations
		for j := 1; j <= 3 && i-j >= 0; j++ {
			prev := tokens[i-j]
			if b, ok := boosters[prev]; ok {
				scale := b
				if j == 2 {
					scale *= 0.95
				} else if j == 3 {
					scale *= 0.9
				}
				if v > 0 {
					v += scale
				} else {
					v -= scale
				}
			}
			if negations[prev] {
				v *= negationScalar
			}
		}
		valences = append(valences, v)
	}

	var sum float64
	var hits int
	for i, v := range valences {
		if v == 0 {
			continue
		}
		hits++
		if butAt >= 0 {
			if i < butAt {
				v *= 0.5
			} else {
				v *= 1.5
			}
		}
		sum += v
	}
	if hits == 0 {
		return models.Polarity{Score: 0, Confidence: 0.1}, nil
	}

	if exclaims > 4 {
		exclaims = 4
	}
	if sum > 0 {
		sum += float64(exclaims) * exclaimBoost
	} else if sum < 0 {
		sum -= float64(exclaims) * exclaimBoost
	}

	compound := clamp(sum/math.Sqrt(sum*sum+normAlpha), -1, 1)
	density := float64(hits) / math.Max(float64(len(valences)), 1)
	conf := clamp(0.25+0.5*math.Min(float64(hits)/4, 1)+0.25*math.Min(density*5, 1), 0.1, 1)
	return models.Polarity{Score: compound, Confidence: conf}, nil
}

var _ domsvc.PolarityAnalyzer = (*ValenceAnalyzer)(nil)
