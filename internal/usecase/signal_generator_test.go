package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"PaperDesk/internal/domain/models"
	"PaperDesk/internal/repository/memory"
	"PaperDesk/pkg/metrics"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func market(price string) MarketContext {
	return MarketContext{
		Sector:         "Technology",
		Price:          decimal.RequireFromString(price),
		PortfolioValue: decimal.NewFromInt(100000),
		Now:            testNow,
	}
}

func TestRiskTierFor(t *testing.T) {
	cases := []struct {
		score, conf float64
		want        models.RiskTier
	}{
		{0.6, 0.85, models.RiskLow},
		{-0.6, 0.85, models.RiskLow},
		{0.5, 0.85, models.RiskMedium},
		{0.35, 0.72, models.RiskMedium},
		{0.35, 0.6, models.RiskHigh},
		{0.9, 0.5, models.RiskHigh},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, RiskTierFor(c.score, c.conf), "score=%v conf=%v", c.score, c.conf)
	}
}

func TestGenerate_Buy(t *testing.T) {
	rec := &models.SentimentRecord{OverallScore: 0.35, Confidence: 0.72, ArticleCount: 12}
	p := defaultParams()
	p.Version = 3

	sig := Generate("AAPL", rec, market("213.55"), p)
	require.NotNil(t, sig)
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.Equal(t, models.RiskMedium, sig.RiskTier)
	assert.Equal(t, int64(23), sig.TargetQuantity)
	assert.InDelta(t, 0.535, sig.Confidence, 1e-9)
	assert.Equal(t, "Technology", sig.Sector)
	assert.Equal(t, models.SignalPending, sig.Status)
	assert.Equal(t, int64(3), sig.ParamsVersion)
	assert.True(t, sig.EstimatedPrice.Equal(decimal.RequireFromString("213.55")))
	assert.Equal(t, testNow.Add(24*time.Hour), sig.ExpiresAt)
	assert.NotEmpty(t, sig.Reasoning)
}

func TestGenerate_Sell(t *testing.T) {
	rec := &models.SentimentRecord{OverallScore: -0.45, Confidence: 0.85, ArticleCount: 20}
	sig := Generate("XOM", rec, market("100"), defaultParams())
	require.NotNil(t, sig)
	assert.Equal(t, models.ActionSell, sig.Action)
	assert.Equal(t, int64(50), sig.TargetQuantity)
	assert.Equal(t, models.RiskMedium, sig.RiskTier)
}

func TestGenerate_NoSignal(t *testing.T) {
	p := defaultParams()
	cases := map[string]struct {
		rec   *models.SentimentRecord
		price string
	}{
		"low confidence":     {&models.SentimentRecord{OverallScore: 0.9, Confidence: 0.59}, "100"},
		"inside thresholds":  {&models.SentimentRecord{OverallScore: 0.19, Confidence: 0.9}, "100"},
		"rounds to zero":     {&models.SentimentRecord{OverallScore: 0.5, Confidence: 0.9}, "6000"},
		"no sentiment":       {nil, "100"},
		"no articles at all": {&models.SentimentRecord{}, "100"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, Generate("AAPL", c.rec, market(c.price), p))
		})
	}
}

func TestGenerate_SymbolOverride(t *testing.T) {
	p := defaultParams()
	p.Overrides = map[string]float64{models.ScopeKey(models.ParamBuyThreshold, "AAPL"): 0.4}
	rec := &models.SentimentRecord{OverallScore: 0.35, Confidence: 0.72}

	assert.Nil(t, Generate("AAPL", rec, market("100"), p))
	assert.NotNil(t, Generate("MSFT", rec, market("100"), p))
}

type generatorFixture struct {
	gen     *SignalGenerator
	ledger  *memory.Ledger
	signals *memory.SignalStore
	pub     *recordingPublisher
}

func newGeneratorFixture(t *testing.T, rec *models.SentimentRecord, prices *stubPrices, seed bool) generatorFixture {
	t.Helper()
	signals := memory.NewSignalStore()
	ledger := memory.NewLedger(signals)
	if seed {
		require.NoError(t, ledger.InitCapital(context.Background(),
			models.NewCapitalState("p1", decimal.NewFromInt(100000), testNow)))
	}
	pub := &recordingPublisher{}
	gen := NewSignalGenerator("p1", stubSentiment{rec: rec}, prices, ledger, signals,
		staticParams{defaultParams()}, func(string) string { return "Technology" }, pub, metrics.Nop{}, nil)
	gen.now = fixedClock(testNow)
	return generatorFixture{gen: gen, ledger: ledger, signals: signals, pub: pub}
}

func TestGenerateSignal_PersistsAndPublishes(t *testing.T) {
	f := newGeneratorFixture(t, &models.SentimentRecord{OverallScore: 0.35, Confidence: 0.72},
		newStubPrices("AAPL", "213.55"), true)

	sig, rec, err := f.gen.GenerateSignal(context.Background(), "aapl")
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "AAPL", rec.Symbol)

	stored, err := f.signals.Get(context.Background(), sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalPending, stored.Status)
	assert.Equal(t, int64(23), stored.TargetQuantity)
	assert.Equal(t, []string{models.EventSignalGenerated}, f.pub.types())
}

func TestGenerateSignal_NoSignalStillReturnsSentiment(t *testing.T) {
	f := newGeneratorFixture(t, &models.SentimentRecord{OverallScore: 0.05, Confidence: 0.9},
		newStubPrices("AAPL", "100"), true)

	sig, rec, err := f.gen.GenerateSignal(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Nil(t, sig)
	require.NotNil(t, rec)
	assert.Empty(t, f.pub.types())
}

func TestGenerateSignal_Errors(t *testing.T) {
	rec := &models.SentimentRecord{OverallScore: 0.5, Confidence: 0.9}

	f := newGeneratorFixture(t, rec, newStubPrices(), true)
	_, _, err := f.gen.GenerateSignal(context.Background(), "AAPL")
	assert.ErrorIs(t, err, models.ErrPriceUnavailable)

	f = newGeneratorFixture(t, rec, newStubPrices("AAPL", "100"), false)
	_, _, err = f.gen.GenerateSignal(context.Background(), "AAPL")
	assert.ErrorIs(t, err, models.ErrCapitalNotSeeded)

	f = newGeneratorFixture(t, rec, newStubPrices("AAPL", "100"), true)
	f.gen.sentiment = stubSentiment{err: errors.New("store down")}
	_, _, err = f.gen.GenerateSignal(context.Background(), "AAPL")
	assert.EqualError(t, err, "store down")
}
