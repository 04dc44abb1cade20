package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"PaperDesk/internal/domain/models"
	"PaperDesk/internal/repository/memory"
	"PaperDesk/pkg/metrics"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedTrade(symbol, sector string, tier models.RiskTier, pl int64, closeAt time.Time) *models.Trade {
	realized := decimal.NewFromInt(pl)
	price := decimal.NewFromInt(100 + pl)
	entry := closeAt.Add(-time.Hour)
	return &models.Trade{
		ID:               fmt.Sprintf("%s-%d-%d", symbol, closeAt.UnixNano(), pl),
		PortfolioID:      "p1",
		Symbol:           symbol,
		Sector:           sector,
		Direction:        models.ActionBuy,
		Quantity:         1,
		EntryPrice:       decimal.NewFromInt(100),
		EntryTime:        entry,
		Status:           models.TradeClosed,
		ClosePrice:       &price,
		CloseTime:        &closeAt,
		RealizedPL:       &realized,
		RiskTier:         tier,
		SignalConfidence: 0.72,
	}
}

// trades builds wins winning and losses losing trades for one symbol.
func trades(symbol, sector string, wins, losses int, closeAt time.Time) []*models.Trade {
	var out []*models.Trade
	for i := 0; i < wins; i++ {
		out = append(out, closedTrade(symbol, sector, models.RiskMedium, 5, closeAt.Add(time.Duration(i)*time.Minute)))
	}
	for i := 0; i < losses; i++ {
		out = append(out, closedTrade(symbol, sector, models.RiskMedium, -5, closeAt.Add(time.Duration(wins+i)*time.Minute)))
	}
	return out
}

func TestMinePatterns_RequiresMinimumSupport(t *testing.T) {
	all := append(trades("AAPL", "Technology", 2, 4, testNow), trades("MSFT", "Technology", 3, 0, testNow)...)

	patterns := MinePatterns(all, 5, "run1", testNow)
	byKey := map[string]models.Pattern{}
	for _, p := range patterns {
		byKey[string(p.PatternType)+":"+p.Scope] = p
	}
	require.Len(t, byKey, 3)

	aapl := byKey["symbol:AAPL"]
	assert.Equal(t, 6, aapl.OccurrenceCount)
	assert.InDelta(t, 1.0/3, aapl.SuccessRate, 1e-9)
	assert.Equal(t, "-1.6667", aapl.AveragePL.String())
	assert.Equal(t, "run1", aapl.RunID)

	assert.NotContains(t, byKey, "symbol:MSFT")
	assert.Equal(t, 9, byKey["sector:Technology"].OccurrenceCount)
	assert.Equal(t, 9, byKey["risk_tier:MEDIUM"].OccurrenceCount)
}

func TestProposeAdjustments_NudgesUnderPerformers(t *testing.T) {
	s := LearningSettings{MinOccurrences: 5}.withDefaults()
	all := trades("AAPL", "Technology", 1, 5, testNow)
	patterns := MinePatterns(all, s.MinOccurrences, "run1", testNow)

	adjs := ProposeAdjustments(patterns, all, defaultParams(), s, "run1", testNow)
	got := map[string]models.ParameterAdjustment{}
	for _, a := range adjs {
		got[models.ScopeKey(a.ParameterName, a.Scope)] = a
	}
	require.Len(t, got, 3)

	buy := got["buy_threshold@AAPL"]
	assert.Equal(t, 0.2, buy.OldValue)
	assert.Equal(t, 0.25, buy.NewValue)
	assert.Contains(t, buy.Reason, "below target")

	assert.Equal(t, 0.25, got["max_sector_allocation@Technology"].NewValue)
	assert.Equal(t, 0.65, got["confidence_threshold@global"].NewValue)
	for _, a := range adjs {
		assert.LessOrEqual(t, a.Confidence, 1.0)
		assert.InDelta(t, s.MaxStep, abs(a.NewValue-a.OldValue), 1e-9)
	}
}

func TestProposeAdjustments_LoosensOutPerformersAndSellers(t *testing.T) {
	s := LearningSettings{MinOccurrences: 5}.withDefaults()
	all := trades("XOM", "Energy", 6, 0, testNow)
	for _, tr := range all {
		tr.Direction = models.ActionSell
	}
	patterns := MinePatterns(all, s.MinOccurrences, "run1", testNow)

	adjs := ProposeAdjustments(patterns, all, defaultParams(), s, "run1", testNow)
	got := map[string]float64{}
	for _, a := range adjs {
		got[models.ScopeKey(a.ParameterName, a.Scope)] = a.NewValue
	}
	assert.Equal(t, 0.15, got["sell_threshold@XOM"])
	assert.Equal(t, 0.35, got["max_sector_allocation@Energy"])
	assert.Equal(t, 0.55, got["confidence_threshold@global"])
}

func TestProposeAdjustments_StaysWithinBounds(t *testing.T) {
	s := LearningSettings{MinOccurrences: 5}.withDefaults()
	p := defaultParams()
	p.ConfidenceThreshold = 0.93
	all := trades("AAPL", "Technology", 0, 6, testNow)
	patterns := MinePatterns(all, s.MinOccurrences, "run1", testNow)

	for _, a := range ProposeAdjustments(patterns, all, p, s, "run1", testNow) {
		if a.ParameterName == models.ParamConfidenceThreshold {
			assert.Equal(t, 0.95, a.NewValue)
		}
	}

	p.ConfidenceThreshold = 0.95
	for _, a := range ProposeAdjustments(patterns, all, p, s, "run1", testNow) {
		assert.NotEqual(t, models.ParamConfidenceThreshold, a.ParameterName)
	}
}

func TestProposeAdjustments_InBandPatternsAreLeftAlone(t *testing.T) {
	s := LearningSettings{MinOccurrences: 5}.withDefaults()
	all := trades("AAPL", "Technology", 3, 3, testNow)
	patterns := MinePatterns(all, s.MinOccurrences, "run1", testNow)
	assert.Empty(t, ProposeAdjustments(patterns, all, defaultParams(), s, "run1", testNow))
}

func TestExtractInsights(t *testing.T) {
	s := LearningSettings{MinOccurrences: 5}.withDefaults()
	all := trades("AAPL", "Technology", 1, 5, testNow)
	few := trades("MSFT", "Technology", 0, 2, testNow)
	for _, tr := range few {
		tr.SignalConfidence = 0.91
	}

	insights := ExtractInsights(append(all, few...), func(t *models.Trade) float64 { return t.SignalConfidence }, s)
	require.Len(t, insights, 1)
	assert.Equal(t, "[0.7,0.8)", insights[0].Scope)
	assert.Contains(t, insights[0].Statement, "under-performs")
	assert.Equal(t, 6, insights[0].Count)
}

func TestEvaluateOutcome(t *testing.T) {
	s := LearningSettings{MinOccurrences: 3, Lookback: 48 * time.Hour}.withDefaults()
	adj := models.ParameterAdjustment{
		ID:            "a1",
		ParameterName: models.ParamBuyThreshold,
		Scope:         "AAPL",
		CreatedAt:     testNow,
	}
	before := trades("AAPL", "Technology", 1, 3, testNow.Add(-24*time.Hour))
	after := trades("AAPL", "Technology", 3, 1, testNow.Add(time.Hour))
	other := trades("MSFT", "Technology", 0, 5, testNow.Add(time.Hour))
	all := append(append(before, after...), other...)

	o := EvaluateOutcome(adj, all, s, "run2", testNow.Add(48*time.Hour))
	assert.Equal(t, models.VerdictImproved, o.Verdict)
	assert.Equal(t, 4, o.TradesBefore)
	assert.Equal(t, 4, o.TradesAfter)
	assert.InDelta(t, 0.25, o.WinRateBefore, 1e-9)
	assert.InDelta(t, 0.75, o.WinRateAfter, 1e-9)

	o = EvaluateOutcome(adj, before, s, "run2", testNow.Add(48*time.Hour))
	assert.Equal(t, models.VerdictInconclusive, o.Verdict)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

type learningFixture struct {
	trades *tradeFixture
	store  *memory.LearningStore
	book   *ParameterBook
	loop   *LearningLoop
	pub    *recordingPublisher
}

func newLearningFixture(t *testing.T) *learningFixture {
	t.Helper()
	tf := newTradeFixture(t, defaultParams())
	store := memory.NewLearningStore()
	book := NewParameterBook(defaultParams(), store)
	pub := &recordingPublisher{}
	loop := NewLearningLoop("p1", tf.ledger, nil, store, book, nil, pub, metrics.Nop{}, nil,
		LearningSettings{MinOccurrences: 5})
	return &learningFixture{trades: tf, store: store, book: book, loop: loop, pub: pub}
}

// closeRound opens and closes one AAPL trade per outcome, winning when true.
func (f *learningFixture) closeRound(t *testing.T, outcomes ...bool) {
	t.Helper()
	ctx := context.Background()
	for i, win := range outcomes {
		id := fmt.Sprintf("sig-%d-%d", f.trades.now.Unix(), i)
		f.trades.signal(t, id, "AAPL", 1, "100")
		d, err := f.trades.tm.EvaluateAndOpen(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, d.Trade)
		price := decimal.NewFromInt(99)
		if win {
			price = decimal.NewFromInt(101)
		}
		f.trades.now = f.trades.now.Add(time.Minute)
		_, err = f.trades.tm.Close(ctx, d.Trade.ID, &price)
		require.NoError(t, err)
	}
}

func TestLearningLoop_RunAppliesAdjustmentsOnce(t *testing.T) {
	ctx := context.Background()
	f := newLearningFixture(t)
	f.closeRound(t, true, false, false, false, false, false)

	from, to := testNow.Add(-24*time.Hour), testNow.Add(24*time.Hour)
	f.loop.now = fixedClock(testNow.Add(48 * time.Hour))

	res, err := f.loop.Run(ctx, from, to)
	require.NoError(t, err)
	require.False(t, res.Skipped)
	assert.Equal(t, 6, res.Run.TradesAnalyzed)
	assert.Equal(t, models.RunCompleted, res.Run.Status)
	assert.Len(t, res.Patterns, 3)
	assert.Len(t, res.Adjustments, 3)
	assert.Len(t, res.Insights, 1)
	assert.Empty(t, res.Outcomes)

	p := f.book.Snapshot()
	assert.Equal(t, int64(3), p.Version)
	assert.Equal(t, 0.25, p.BuyThresholdFor("AAPL"))
	assert.Equal(t, 0.2, p.BuyThresholdFor("MSFT"))
	assert.Equal(t, 0.65, p.ConfidenceThreshold)
	assert.Equal(t, 0.25, p.MaxSectorAllocationFor("Technology"))

	again, err := f.loop.Run(ctx, from, to)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, "range already processed", again.SkipReason)

	stored, err := f.loop.Adjustments(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	assert.Equal(t, int64(3), f.book.Snapshot().Version)

	events := 0
	for _, typ := range f.pub.types() {
		if typ == models.EventParametersAdjusted {
			events++
		}
	}
	assert.Equal(t, 3, events)

	runs, err := f.loop.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestLearningLoop_RecordsOutcomesForOldAdjustments(t *testing.T) {
	ctx := context.Background()
	f := newLearningFixture(t)
	f.closeRound(t, true, false, false, false, false, false)

	f.loop.now = fixedClock(testNow.Add(48 * time.Hour))
	_, err := f.loop.Run(ctx, testNow.Add(-24*time.Hour), testNow.Add(24*time.Hour))
	require.NoError(t, err)

	f.loop.now = fixedClock(testNow.Add(96 * time.Hour))
	res, err := f.loop.Run(ctx, testNow.Add(24*time.Hour), testNow.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 3)
	for _, o := range res.Outcomes {
		assert.Equal(t, models.VerdictInconclusive, o.Verdict)
	}
	assert.Empty(t, res.Adjustments)

	f.loop.now = fixedClock(testNow.Add(144 * time.Hour))
	res, err = f.loop.Run(ctx, testNow.Add(72*time.Hour), testNow.Add(120*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, res.Outcomes)
}

func TestLearningLoop_TooFewTradesChangeNothing(t *testing.T) {
	f := newLearningFixture(t)
	f.closeRound(t, false, false, false)

	f.loop.now = fixedClock(testNow.Add(48 * time.Hour))
	res, err := f.loop.Run(context.Background(), testNow.Add(-24*time.Hour), testNow.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, res.Patterns)
	assert.Empty(t, res.Adjustments)
	assert.Equal(t, int64(0), f.book.Snapshot().Version)
}

func TestLearningLoop_Validation(t *testing.T) {
	f := newLearningFixture(t)
	_, err := f.loop.Run(context.Background(), testNow, testNow)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.KindValidation, kind)

	_, err = f.loop.Patterns(context.Background(), models.PatternFilter{Type: "weekday"})
	assert.Error(t, err)
}

func TestParameterBook_ReloadReplaysHistory(t *testing.T) {
	ctx := context.Background()
	f := newLearningFixture(t)
	f.closeRound(t, true, false, false, false, false, false)
	f.loop.now = fixedClock(testNow.Add(48 * time.Hour))
	_, err := f.loop.Run(ctx, testNow.Add(-24*time.Hour), testNow.Add(24*time.Hour))
	require.NoError(t, err)

	restarted := NewParameterBook(defaultParams(), f.store)
	assert.Equal(t, 0.2, restarted.Snapshot().BuyThresholdFor("AAPL"))
	require.NoError(t, restarted.Reload(ctx))
	assert.Equal(t, f.book.Snapshot().Version, restarted.Snapshot().Version)
	assert.Equal(t, 0.25, restarted.Snapshot().BuyThresholdFor("AAPL"))
}

func TestLearningLoop_DailyTriggersDoNotReapplySameTrades(t *testing.T) {
	ctx := context.Background()
	f := newLearningFixture(t)
	f.closeRound(t, true, false, false, false, false, false)
	sched := NewLearningScheduler(f.loop, nil, 2, 0, nil)

	for day := 1; day <= 4; day++ {
		f.loop.now = fixedClock(testNow.Add(time.Duration(day) * 24 * time.Hour))
		sched.Trigger(ctx)

		p := f.book.Snapshot()
		assert.Equal(t, int64(3), p.Version, "day %d", day)
		assert.Equal(t, 0.25, p.BuyThresholdFor("AAPL"), "day %d", day)
		assert.Equal(t, 0.65, p.ConfidenceThreshold, "day %d", day)
	}

	runs, err := f.loop.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 4)
	applied := 0
	for _, r := range runs {
		assert.Equal(t, models.RunCompleted, r.Status)
		assert.Equal(t, 6, r.TradesAnalyzed)
		applied += r.AdjustmentsApplied
	}
	assert.Equal(t, 3, applied)

	// New closes after the last completed run feed the next cycle again.
	f.trades.now = testNow.Add(4 * 24 * time.Hour)
	f.closeRound(t, false, false, false, false, false, false)
	f.loop.now = fixedClock(testNow.Add(5 * 24 * time.Hour))
	res, err := f.loop.Run(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.False(t, res.Skipped)
	assert.NotEmpty(t, res.Adjustments)
	assert.Greater(t, f.book.Snapshot().BuyThresholdFor("AAPL"), 0.25)
}

func TestLearningLoop_ReclaimsAbandonedRun(t *testing.T) {
	ctx := context.Background()
	f := newLearningFixture(t)
	f.closeRound(t, true, false, false, false, false, false)
	from, to := testNow.Add(-24*time.Hour), testNow.Add(24*time.Hour)

	crashedAt := testNow.Add(48 * time.Hour)
	require.NoError(t, f.store.BeginRun(ctx, &models.LearningRun{
		ID: "crashed", RangeStart: from, RangeEnd: to, Status: models.RunRunning, StartedAt: crashedAt,
	}, time.Time{}))

	f.loop.now = fixedClock(crashedAt.Add(30 * time.Minute))
	res, err := f.loop.Run(ctx, from, to)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	f.loop.now = fixedClock(crashedAt.Add(learningLockTTL + time.Minute))
	res, err = f.loop.Run(ctx, from, to)
	require.NoError(t, err)
	require.False(t, res.Skipped)
	assert.Len(t, res.Adjustments, 3)

	runs, err := f.loop.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	byID := map[string]models.LearningRun{}
	for _, r := range runs {
		byID[r.ID] = r
	}
	assert.Equal(t, models.RunFailed, byID["crashed"].Status)
	assert.Equal(t, models.RunCompleted, byID[res.Run.ID].Status)
}

// failingBook accepts snapshots but refuses to fold adjustments.
type failingBook struct {
	*ParameterBook
	reloads int
}

func (b *failingBook) Apply([]models.ParameterAdjustment) error {
	return fmt.Errorf("snapshot busy")
}

func (b *failingBook) Reload(ctx context.Context) error {
	b.reloads++
	return b.ParameterBook.Reload(ctx)
}

func TestLearningLoop_CommittedRunSurvivesApplyFailure(t *testing.T) {
	ctx := context.Background()
	f := newLearningFixture(t)
	f.closeRound(t, true, false, false, false, false, false)
	book := &failingBook{ParameterBook: f.book}
	loop := NewLearningLoop("p1", f.trades.ledger, nil, f.store, book, nil, f.pub, metrics.Nop{}, nil,
		LearningSettings{MinOccurrences: 5})
	loop.now = fixedClock(testNow.Add(48 * time.Hour))

	from, to := testNow.Add(-24*time.Hour), testNow.Add(24*time.Hour)
	res, err := loop.Run(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, res.Run.Status)
	assert.Equal(t, 1, book.reloads)
	assert.Equal(t, 0.25, f.book.Snapshot().BuyThresholdFor("AAPL"))

	runs, err := loop.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunCompleted, runs[0].Status)

	again, err := loop.Run(ctx, from, to)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, 0.25, f.book.Snapshot().BuyThresholdFor("AAPL"))
}
