package usecase

import (
	"fmt"
	"math"
	"sort"
	"time"

	"PaperDesk/internal/domain/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LearningSettings struct {
	Lookback       time.Duration
	MinOccurrences int
	TargetWinRate  float64
	Tolerance      float64
	MaxStep        float64
	OutcomeMinAge  time.Duration
}

func (s LearningSettings) withDefaults() LearningSettings {
	if s.Lookback <= 0 {
		s.Lookback = 30 * 24 * time.Hour
	}
	if s.MinOccurrences <= 0 {
		s.MinOccurrences = 5
	}
	if s.TargetWinRate <= 0 {
		s.TargetWinRate = 0.55
	}
	if s.Tolerance <= 0 {
		s.Tolerance = 0.1
	}
	if s.MaxStep <= 0 {
		s.MaxStep = 0.05
	}
	if s.OutcomeMinAge <= 0 {
		s.OutcomeMinAge = 24 * time.Hour
	}
	return s
}

// support scales a sample size into a confidence in [0,1].
func (s LearningSettings) support(n int) float64 {
	return math.Min(float64(n)/float64(2*s.MinOccurrences), 1)
}

type tally struct {
	wins  int
	count int
	pl    decimal.Decimal
	buys  int
	sells int
}

func (t *tally) add(tr *models.Trade) {
	t.count++
	if tr.Won() {
		t.wins++
	}
	if tr.RealizedPL != nil {
		t.pl = t.pl.Add(*tr.RealizedPL)
	}
	if tr.Direction == models.ActionSell {
		t.sells++
	} else {
		t.buys++
	}
}

func (t *tally) winRate() float64 {
	if t.count == 0 {
		return 0
	}
	return float64(t.wins) / float64(t.count)
}

func scopeOf(pt models.PatternType, t *models.Trade) string {
	switch pt {
	case models.PatternSymbol:
		return t.Symbol
	case models.PatternSector:
		return t.Sector
	default:
		return string(t.RiskTier)
	}
}

var patternTypes = []models.PatternType{models.PatternSymbol, models.PatternSector, models.PatternRiskTier}

// MinePatterns partitions closed trades by symbol, sector and risk tier and
// keeps the partitions with at least minOccurrences trades.
func MinePatterns(trades []*models.Trade, minOccurrences int, runID string, now time.Time) []models.Pattern {
	var out []models.Pattern
	for _, pt := range patternTypes {
		groups := map[string]*tally{}
		for _, t := range trades {
			if t.Status != models.TradeClosed {
				continue
			}
			key := scopeOf(pt, t)
			g, ok := groups[key]
			if !ok {
				g = &tally{}
				groups[key] = g
			}
			g.add(t)
		}
		scopes := make([]string, 0, len(groups))
		for s := range groups {
			scopes = append(scopes, s)
		}
		sort.Strings(scopes)
		for _, s := range scopes {
			g := groups[s]
			if g.count < minOccurrences {
				continue
			}
			out = append(out, models.Pattern{
				ID:              uuid.NewString(),
				RunID:           runID,
				PatternType:     pt,
				Scope:           s,
				SuccessRate:     g.winRate(),
				AveragePL:       g.pl.Div(decimal.NewFromInt(int64(g.count))).Round(4),
				OccurrenceCount: g.count,
				CreatedAt:       now,
			})
		}
	}
	return out
}

// ConfidenceBand is the lower bound of the 0.1-wide band holding c.
func ConfidenceBand(c float64) float64 {
	b := math.Floor(c*10) / 10
	return math.Max(0, math.Min(b, 0.9))
}

// ExtractInsights buckets trades by the sentiment confidence they were
// entered on and reports bands whose win rate misses the target band.
func ExtractInsights(trades []*models.Trade, confidenceAt func(*models.Trade) float64, s LearningSettings) []models.Insight {
	bands := map[float64]*tally{}
	for _, t := range trades {
		if t.Status != models.TradeClosed {
			continue
		}
		b := ConfidenceBand(confidenceAt(t))
		g, ok := bands[b]
		if !ok {
			g = &tally{}
			bands[b] = g
		}
		g.add(t)
	}
	keys := make([]float64, 0, len(bands))
	for b := range bands {
		keys = append(keys, b)
	}
	sort.Float64s(keys)

	var out []models.Insight
	for _, b := range keys {
		g := bands[b]
		if g.count < s.MinOccurrences {
			continue
		}
		wr := g.winRate()
		dev := wr - s.TargetWinRate
		if math.Abs(dev) <= s.Tolerance {
			continue
		}
		verb := "out-performs"
		if dev < 0 {
			verb = "under-performs"
		}
		out = append(out, models.Insight{
			Kind:  "confidence_band",
			Scope: fmt.Sprintf("[%.1f,%.1f)", b, b+0.1),
			Statement: fmt.Sprintf("confidence in [%.1f,%.1f) %s target win-rate (%.2f vs %.2f over %d trades)",
				b, b+0.1, verb, wr, s.TargetWinRate, g.count),
			WinRate:    wr,
			Count:      g.count,
			Confidence: s.support(g.count),
			Impact:     math.Abs(dev),
		})
	}
	return out
}

type candidate struct {
	adj       models.ParameterAdjustment
	deviation float64
}

// ProposeAdjustments turns out-of-band patterns into bounded nudges, at most
// one per scope, the pattern with the largest deviation winning.
func ProposeAdjustments(patterns []models.Pattern, trades []*models.Trade, p models.Parameters, s LearningSettings, runID string, now time.Time) []models.ParameterAdjustment {
	direction := map[string]*tally{}
	for _, t := range trades {
		if t.Status != models.TradeClosed {
			continue
		}
		g, ok := direction[t.Symbol]
		if !ok {
			g = &tally{}
			direction[t.Symbol] = g
		}
		g.add(t)
	}

	best := map[string]candidate{}
	for _, pat := range patterns {
		dev := pat.SuccessRate - s.TargetWinRate
		if math.Abs(dev) <= s.Tolerance {
			continue
		}
		under := dev < 0

		var name, scope string
		step := s.MaxStep
		switch pat.PatternType {
		case models.PatternRiskTier:
			name, scope = models.ParamConfidenceThreshold, models.GlobalScope
		case models.PatternSymbol:
			name, scope = models.ParamBuyThreshold, pat.Scope
			if g := direction[pat.Scope]; g != nil && g.sells > g.buys {
				name = models.ParamSellThreshold
			}
		case models.PatternSector:
			name, scope = models.ParamMaxSectorAllocation, pat.Scope
			// a cap loosens upward, so the sign is the reverse of a threshold
			step = -step
		default:
			continue
		}
		if !under {
			step = -step
		}

		old := p.Value(name, scope)
		next := models.ParameterBounds[name].Clamp(round4(old + step))
		if next == old {
			continue
		}

		key := scopeKeyFor(pat.PatternType, scope)
		if cur, ok := best[key]; ok && cur.deviation >= math.Abs(dev) {
			continue
		}
		verb := "above"
		if under {
			verb = "below"
		}
		best[key] = candidate{
			deviation: math.Abs(dev),
			adj: models.ParameterAdjustment{
				ID:            uuid.NewString(),
				RunID:         runID,
				ParameterName: name,
				Scope:         scope,
				OldValue:      old,
				NewValue:      next,
				Reason: fmt.Sprintf("%s %s win rate %.2f %s target %.2f±%.2f over %d trades",
					pat.PatternType, pat.Scope, pat.SuccessRate, verb, s.TargetWinRate, s.Tolerance, pat.OccurrenceCount),
				Confidence: s.support(pat.OccurrenceCount),
				CreatedAt:  now,
			},
		}
	}

	keys := make([]string, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]models.ParameterAdjustment, 0, len(keys))
	for _, k := range keys {
		out = append(out, best[k].adj)
	}
	return out
}

func scopeKeyFor(pt models.PatternType, scope string) string {
	if scope == models.GlobalScope {
		return scope
	}
	return string(pt) + ":" + scope
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// inScope reports whether a trade falls under an adjustment's scope.
func inScope(adj models.ParameterAdjustment, t *models.Trade) bool {
	switch {
	case adj.Scope == "" || adj.Scope == models.GlobalScope:
		return true
	case adj.ParameterName == models.ParamMaxSectorAllocation:
		return t.Sector == adj.Scope
	default:
		return t.Symbol == adj.Scope
	}
}

// EvaluateOutcome compares the scope's win rate over the lookback before an
// adjustment with its win rate since.
func EvaluateOutcome(adj models.ParameterAdjustment, trades []*models.Trade, s LearningSettings, runID string, now time.Time) models.AdjustmentOutcome {
	var before, after tally
	from := adj.CreatedAt.Add(-s.Lookback)
	for _, t := range trades {
		if t.Status != models.TradeClosed || t.CloseTime == nil || !inScope(adj, t) {
			continue
		}
		ct := *t.CloseTime
		switch {
		case !ct.Before(from) && ct.Before(adj.CreatedAt):
			before.add(t)
		case !ct.Before(adj.CreatedAt) && ct.Before(now):
			after.add(t)
		}
	}

	verdict := models.VerdictInconclusive
	if after.count >= s.MinOccurrences && before.count > 0 {
		switch {
		case after.winRate() > before.winRate():
			verdict = models.VerdictImproved
		case after.winRate() < before.winRate():
			verdict = models.VerdictDegraded
		}
	}
	return models.AdjustmentOutcome{
		ID:            uuid.NewString(),
		AdjustmentID:  adj.ID,
		RunID:         runID,
		EvaluatedAt:   now,
		WinRateBefore: before.winRate(),
		WinRateAfter:  after.winRate(),
		TradesBefore:  before.count,
		TradesAfter:   after.count,
		Verdict:       verdict,
	}
}
