package usecase

import (
	"testing"
	"time"

	"PaperDesk/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingSignal(qty int64, price string) *models.Signal {
	return &models.Signal{
		ID:             "s1",
		Symbol:         "AAPL",
		Sector:         "Technology",
		Action:         models.ActionBuy,
		TargetQuantity: qty,
		EstimatedPrice: decimal.RequireFromString(price),
		Status:         models.SignalPending,
		CreatedAt:      testNow,
		ExpiresAt:      testNow.Add(time.Hour),
	}
}

func capitalWith(cash int64) *models.CapitalState {
	c := models.NewCapitalState("p1", decimal.NewFromInt(100000), testNow)
	c.CashAvailable = decimal.NewFromInt(cash)
	return c
}

func TestEvaluate_AcceptsInFull(t *testing.T) {
	a, err := Evaluate(pendingSignal(10, "100"), capitalWith(100000), defaultParams(), testNow)
	require.NoError(t, err)
	assert.True(t, a.Accepted)
	assert.False(t, a.Shrunk)
	assert.Equal(t, int64(10), a.Quantity)
	assert.Empty(t, a.Reason)
}

func TestEvaluate_ShrinksToCash(t *testing.T) {
	a, err := Evaluate(pendingSignal(10, "100"), capitalWith(700), defaultParams(), testNow)
	require.NoError(t, err)
	assert.True(t, a.Accepted)
	assert.True(t, a.Shrunk)
	assert.Equal(t, int64(7), a.Quantity)
	assert.Equal(t, int64(10), a.Requested)
	assert.Equal(t, models.ReasonInsufficientCapital, a.Reason)
}

func TestEvaluate_ShrinksToSectorRoom(t *testing.T) {
	c := capitalWith(70200)
	c.SectorAllocation["Technology"] = decimal.NewFromInt(29800)

	a, err := Evaluate(pendingSignal(10, "100"), c, defaultParams(), testNow)
	require.NoError(t, err)
	assert.True(t, a.Accepted)
	assert.Equal(t, int64(2), a.Quantity)
	assert.Equal(t, models.ReasonSectorConcentration, a.Reason)
}

func TestEvaluate_RejectsWhenNothingFits(t *testing.T) {
	c := capitalWith(95050)
	c.SymbolExposure["AAPL"] = decimal.NewFromInt(4950)
	c.SectorAllocation["Technology"] = decimal.NewFromInt(4950)

	a, err := Evaluate(pendingSignal(10, "100"), c, defaultParams(), testNow)
	require.NoError(t, err)
	assert.False(t, a.Accepted)
	assert.Zero(t, a.Quantity)
	assert.Equal(t, models.ReasonPositionTooLarge, a.Reason)
}

func TestEvaluate_PositionLimitCannotShrink(t *testing.T) {
	c := capitalWith(100000)
	c.OpenPositionCount = 20

	a, err := Evaluate(pendingSignal(1, "100"), c, defaultParams(), testNow)
	require.NoError(t, err)
	assert.False(t, a.Accepted)
	assert.Equal(t, models.ReasonPositionLimit, a.Reason)
}

func TestEvaluate_CashReasonReportedBeforePositionLimit(t *testing.T) {
	c := capitalWith(500)
	c.OpenPositionCount = 20

	a, err := Evaluate(pendingSignal(10, "100"), c, defaultParams(), testNow)
	require.NoError(t, err)
	assert.False(t, a.Accepted)
	assert.Zero(t, a.Quantity)
	assert.Equal(t, models.ReasonInsufficientCapital, a.Reason)

	c.SectorAllocation["Technology"] = decimal.NewFromInt(30000)
	a, err = Evaluate(pendingSignal(1, "100"), c, defaultParams(), testNow)
	require.NoError(t, err)
	assert.False(t, a.Accepted)
	assert.Equal(t, models.ReasonPositionLimit, a.Reason)
}

func TestEvaluate_ExpiredSignal(t *testing.T) {
	sig := pendingSignal(1, "100")
	a, err := Evaluate(sig, capitalWith(100000), defaultParams(), sig.ExpiresAt)
	require.NoError(t, err)
	assert.False(t, a.Accepted)
	assert.Equal(t, models.ReasonSignalExpired, a.Reason)
}

func TestEvaluate_InvalidInput(t *testing.T) {
	_, err := Evaluate(pendingSignal(0, "100"), capitalWith(100), defaultParams(), testNow)
	assert.Error(t, err)

	_, err = Evaluate(pendingSignal(1, "0"), capitalWith(100), defaultParams(), testNow)
	assert.Error(t, err)

	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.KindValidation, kind)
}
