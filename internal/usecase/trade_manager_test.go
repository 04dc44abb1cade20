package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"PaperDesk/internal/domain/models"
	"PaperDesk/internal/repository/memory"
	"PaperDesk/pkg/metrics"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tradeFixture struct {
	tm      *TradeManager
	ledger  *memory.Ledger
	signals *memory.SignalStore
	prices  *stubPrices
	pub     *recordingPublisher
	now     time.Time
}

func newTradeFixture(t *testing.T, params models.Parameters) *tradeFixture {
	t.Helper()
	signals := memory.NewSignalStore()
	ledger := memory.NewLedger(signals)
	f := &tradeFixture{
		ledger:  ledger,
		signals: signals,
		prices:  newStubPrices(),
		pub:     &recordingPublisher{},
		now:     testNow,
	}
	f.tm = NewTradeManager("p1", ledger, signals, f.prices, staticParams{params}, nil, f.pub, metrics.Nop{}, nil,
		TradeSettings{StalenessWindow: 24 * time.Hour})
	f.tm.now = func() time.Time { return f.now }
	_, err := f.tm.SeedCapital(context.Background(), decimal.NewFromInt(100000))
	require.NoError(t, err)
	return f
}

func (f *tradeFixture) signal(t *testing.T, id, symbol string, qty int64, price string) *models.Signal {
	t.Helper()
	sig := f.build(id, symbol, qty, price)
	require.NoError(t, f.signals.Insert(context.Background(), sig))
	return sig
}

func (f *tradeFixture) build(id, symbol string, qty int64, price string) *models.Signal {
	return &models.Signal{
		ID:             id,
		Symbol:         symbol,
		Sector:         "Technology",
		Action:         models.ActionBuy,
		Confidence:     0.7,
		RiskTier:       models.RiskMedium,
		TargetQuantity: qty,
		EstimatedPrice: decimal.RequireFromString(price),
		Status:         models.SignalPending,
		CreatedAt:      f.now,
		ExpiresAt:      f.now.Add(24 * time.Hour),
	}
}

// assertConserved checks cash plus open entry values equals the portfolio value.
func (f *tradeFixture) assertConserved(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	c, err := f.tm.Capital(ctx)
	require.NoError(t, err)
	open, err := f.ledger.ListOpen(ctx, "p1")
	require.NoError(t, err)
	sum := c.CashAvailable
	for _, tr := range open {
		sum = sum.Add(tr.EntryValue())
	}
	assert.True(t, sum.Equal(c.TotalPortfolioValue), "cash+open=%s total=%s", sum, c.TotalPortfolioValue)
	assert.Equal(t, len(open), c.OpenPositionCount)
	assert.False(t, c.CashAvailable.IsNegative())
}

func TestSeedCapital_Idempotent(t *testing.T) {
	f := newTradeFixture(t, defaultParams())
	c, err := f.tm.SeedCapital(context.Background(), decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, c.CashAvailable.Equal(decimal.NewFromInt(100000)))
}

func TestOpenAndClose_RealizesPL(t *testing.T) {
	ctx := context.Background()
	f := newTradeFixture(t, defaultParams())
	f.signal(t, "s1", "AAPL", 15, "200")

	d, err := f.tm.EvaluateAndOpen(ctx, "s1")
	require.NoError(t, err)
	require.True(t, d.Allocation.Accepted)
	require.NotNil(t, d.Trade)
	assert.True(t, d.Capital.CashAvailable.Equal(decimal.NewFromInt(97000)))
	f.assertConserved(t)

	sig, err := f.signals.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SignalAccepted, sig.Status)

	price := decimal.RequireFromString("206.95")
	f.now = f.now.Add(time.Hour)
	closed, err := f.tm.Close(ctx, d.Trade.ID, &price)
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, closed.Status)
	assert.Equal(t, models.CloseManual, closed.CloseReason)
	require.NotNil(t, closed.RealizedPL)
	assert.Equal(t, "104.25", closed.RealizedPL.StringFixed(2))

	c, err := f.tm.Capital(ctx)
	require.NoError(t, err)
	assert.Equal(t, "100104.25", c.CashAvailable.StringFixed(2))
	assert.Equal(t, "100104.25", c.TotalPortfolioValue.StringFixed(2))
	assert.Equal(t, "104.25", c.RealizedPL.StringFixed(2))
	assert.Zero(t, c.OpenPositionCount)
	f.assertConserved(t)

	_, err = f.tm.Close(ctx, d.Trade.ID, &price)
	assert.ErrorIs(t, err, models.ErrTradeNotOpen)

	assert.Equal(t, []string{models.EventTradeOpened, models.EventTradeClosed}, f.pub.types())
}

func TestClose_SellTradeAtMarketPrice(t *testing.T) {
	ctx := context.Background()
	f := newTradeFixture(t, defaultParams())
	sig := f.build("s1", "XOM", 10, "100")
	sig.Action = models.ActionSell
	require.NoError(t, f.signals.Insert(ctx, sig))

	d, err := f.tm.EvaluateAndOpen(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, d.Trade)
	assert.Equal(t, models.ActionSell, d.Trade.Direction)

	_, err = f.tm.Close(ctx, d.Trade.ID, nil)
	assert.ErrorIs(t, err, models.ErrPriceUnavailable)

	f.prices.prices["XOM"] = decimal.NewFromInt(90)
	closed, err := f.tm.Close(ctx, d.Trade.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "100.00", closed.RealizedPL.StringFixed(2))
	f.assertConserved(t)
}

func TestClose_ShortLossIsCappedAtCollateral(t *testing.T) {
	ctx := context.Background()
	params := defaultParams()
	params.MaxPositionSize = 1
	params.MaxSectorAllocation = 1
	f := newTradeFixture(t, params)

	var ids []string
	for i := 0; i < 19; i++ {
		sig := f.build(fmt.Sprintf("s%d", i), fmt.Sprintf("SYM%d", i), 50, "100")
		sig.Action = models.ActionSell
		require.NoError(t, f.signals.Insert(ctx, sig))
		d, err := f.tm.EvaluateAndOpen(ctx, sig.ID)
		require.NoError(t, err)
		require.NotNil(t, d.Trade)
		ids = append(ids, d.Trade.ID)
	}
	c, err := f.tm.Capital(ctx)
	require.NoError(t, err)
	require.True(t, c.CashAvailable.Equal(decimal.NewFromInt(5000)))

	spike := decimal.NewFromInt(400)
	for _, id := range ids {
		closed, err := f.tm.Close(ctx, id, &spike)
		require.NoError(t, err)
		assert.Equal(t, "200", closed.ClosePrice.String())
		assert.Equal(t, "-5000", closed.RealizedPL.String())
		f.assertConserved(t)
	}

	c, err = f.tm.Capital(ctx)
	require.NoError(t, err)
	assert.True(t, c.CashAvailable.Equal(decimal.NewFromInt(5000)), "cash=%s", c.CashAvailable)
	assert.True(t, c.TotalPortfolioValue.Equal(decimal.NewFromInt(5000)))
	assert.True(t, c.RealizedPL.Equal(decimal.NewFromInt(-95000)))
	assert.Zero(t, c.OpenPositionCount)
}

func TestClose_RejectsNonPositivePrice(t *testing.T) {
	f := newTradeFixture(t, defaultParams())
	zero := decimal.Zero
	_, err := f.tm.Close(context.Background(), "t1", &zero)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.KindValidation, kind)
}

func TestCancel_RefundsWithoutPL(t *testing.T) {
	ctx := context.Background()
	f := newTradeFixture(t, defaultParams())
	f.signal(t, "s1", "AAPL", 10, "150")

	d, err := f.tm.EvaluateAndOpen(ctx, "s1")
	require.NoError(t, err)

	cancelled, err := f.tm.Cancel(ctx, d.Trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeCancelled, cancelled.Status)
	assert.Nil(t, cancelled.RealizedPL)

	c, err := f.tm.Capital(ctx)
	require.NoError(t, err)
	assert.True(t, c.CashAvailable.Equal(decimal.NewFromInt(100000)))
	assert.True(t, c.RealizedPL.IsZero())
	assert.Empty(t, c.SymbolExposure)

	_, err = f.tm.Cancel(ctx, d.Trade.ID)
	assert.ErrorIs(t, err, models.ErrTradeNotOpen)
}

func TestEvaluateAndOpen_RejectionConsumesSignal(t *testing.T) {
	ctx := context.Background()
	f := newTradeFixture(t, defaultParams())
	sig := f.signal(t, "s1", "AAPL", 10, "100")

	f.now = sig.ExpiresAt.Add(time.Second)
	d, err := f.tm.EvaluateAndOpen(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, d.Allocation.Accepted)
	assert.Equal(t, models.ReasonSignalExpired, d.Allocation.Reason)
	assert.Nil(t, d.Trade)

	stored, err := f.signals.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SignalRejected, stored.Status)

	_, err = f.tm.EvaluateAndOpen(ctx, "s1")
	assert.ErrorIs(t, err, models.ErrSignalConsumed)
}

func TestEvaluateAndOpen_UnknownSignal(t *testing.T) {
	f := newTradeFixture(t, defaultParams())
	_, err := f.tm.EvaluateAndOpen(context.Background(), "missing")
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.KindNotFound, kind)
}

func TestEvaluateAndOpen_ConcurrentSignalsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	p := defaultParams()
	p.MaxPositionSize = 0.25
	p.MaxSectorAllocation = 1
	f := newTradeFixture(t, p)

	const n = 12
	for i := 0; i < n; i++ {
		f.signal(t, fmt.Sprintf("s%d", i), fmt.Sprintf("SYM%d", i), 100, "100")
	}

	var wg sync.WaitGroup
	decisions := make([]*models.TradeDecision, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], errs[i] = f.tm.EvaluateAndOpen(ctx, fmt.Sprintf("s%d", i))
		}(i)
	}
	wg.Wait()

	opened := 0
	for i := range decisions {
		require.NoError(t, errs[i])
		if decisions[i].Trade != nil {
			opened++
		}
	}
	// 100000 of cash buys exactly ten 10000 positions
	assert.Equal(t, 10, opened)
	c, err := f.tm.Capital(ctx)
	require.NoError(t, err)
	assert.True(t, c.CashAvailable.IsZero())
	f.assertConserved(t)
}

func TestSweepStale(t *testing.T) {
	ctx := context.Background()
	f := newTradeFixture(t, defaultParams())
	f.signal(t, "old", "AAPL", 10, "100")
	f.signal(t, "older", "MSFT", 10, "100")

	oldTrade, err := f.tm.EvaluateAndOpen(ctx, "old")
	require.NoError(t, err)
	olderTrade, err := f.tm.EvaluateAndOpen(ctx, "older")
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	f.signal(t, "fresh", "NVDA", 10, "100")
	fresh, err := f.tm.EvaluateAndOpen(ctx, "fresh")
	require.NoError(t, err)

	f.prices.prices["AAPL"] = decimal.NewFromInt(110)
	f.now = testNow.Add(25 * time.Hour)

	n, err := f.tm.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := f.tm.Trade(ctx, oldTrade.Trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CloseStaleSweep, got.CloseReason)
	assert.Equal(t, "100.00", got.RealizedPL.StringFixed(2))

	// no price: closed flat at entry
	got, err = f.tm.Trade(ctx, olderTrade.Trade.ID)
	require.NoError(t, err)
	assert.True(t, got.RealizedPL.IsZero())

	got, err = f.tm.Trade(ctx, fresh.Trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeOpen, got.Status)
	f.assertConserved(t)
}

func TestTrades_ListsByStatus(t *testing.T) {
	ctx := context.Background()
	f := newTradeFixture(t, defaultParams())
	var ids []string
	for i := 0; i < 3; i++ {
		f.signal(t, fmt.Sprintf("s%d", i), "AAPL", 1, "100")
		d, err := f.tm.EvaluateAndOpen(ctx, fmt.Sprintf("s%d", i))
		require.NoError(t, err)
		ids = append(ids, d.Trade.ID)
	}
	price := decimal.NewFromInt(101)
	for _, id := range ids[:2] {
		f.now = f.now.Add(time.Minute)
		_, err := f.tm.Close(ctx, id, &price)
		require.NoError(t, err)
	}

	open, err := f.tm.Trades(ctx, models.TradeOpen, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, ids[2], open[0].ID)

	closed, err := f.tm.Trades(ctx, models.TradeClosed, 1)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, ids[1], closed[0].ID)

	_, err = f.tm.Trades(ctx, "PENDING", 0)
	assert.Error(t, err)
}

func TestMutate_BusyLockSurfacesConcurrency(t *testing.T) {
	f := newTradeFixture(t, defaultParams())
	locker := &busyLocker{}
	f.tm.locker = locker
	f.signal(t, "s1", "AAPL", 1, "100")

	_, err := f.tm.EvaluateAndOpen(context.Background(), "s1")
	assert.ErrorIs(t, err, models.ErrConcurrency)
	assert.Equal(t, int32(2), locker.attempts.Load())
}
