package usecase

import (
	"time"

	"PaperDesk/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Evaluate sizes sig against one capital snapshot. When the requested
// quantity breaks a rule, the largest quantity that passes every rule is
// accepted instead; the first broken rule is still reported as Reason.
func Evaluate(sig *models.Signal, c *models.CapitalState, p models.Parameters, now time.Time) (models.Allocation, error) {
	if sig == nil || c == nil {
		return models.Allocation{}, models.ValidationError("signal", "is required")
	}
	if sig.TargetQuantity <= 0 {
		return models.Allocation{}, models.ValidationError("quantity", "must be positive")
	}
	if !sig.EstimatedPrice.IsPositive() {
		return models.Allocation{}, models.ValidationError("price", "must be positive")
	}

	alloc := models.Allocation{Requested: sig.TargetQuantity}
	if sig.Expired(now) {
		alloc.Reason = models.ReasonSignalExpired
		return alloc, nil
	}

	price := sig.EstimatedPrice
	full := c.OpenPositionCount+1 > p.MaxPositions
	total := c.TotalPortfolioValue
	sectorRoom := decimal.NewFromFloat(p.MaxSectorAllocationFor(sig.Sector)).Mul(total).Sub(c.SectorAmount(sig.Sector))
	symbolRoom := decimal.NewFromFloat(p.Value(models.ParamMaxPositionSize, sig.Symbol)).Mul(total).Sub(c.SymbolAmount(sig.Symbol))

	value := price.Mul(decimal.NewFromInt(sig.TargetQuantity))
	switch {
	case value.GreaterThan(c.CashAvailable):
		alloc.Reason = models.ReasonInsufficientCapital
	case full:
		alloc.Reason = models.ReasonPositionLimit
	case value.GreaterThan(sectorRoom):
		alloc.Reason = models.ReasonSectorConcentration
	case value.GreaterThan(symbolRoom):
		alloc.Reason = models.ReasonPositionTooLarge
	default:
		alloc.Accepted = true
		alloc.Quantity = sig.TargetQuantity
		return alloc, nil
	}
	// No quantity frees a position slot.
	if full {
		return alloc, nil
	}

	q := sig.TargetQuantity
	for _, room := range []decimal.Decimal{c.CashAvailable, sectorRoom, symbolRoom} {
		q = min(q, affordable(room, price))
	}
	if q <= 0 {
		return alloc, nil
	}
	alloc.Accepted = true
	alloc.Quantity = q
	alloc.Shrunk = true
	return alloc, nil
}

// affordable is floor(room/price), never negative.
func affordable(room, price decimal.Decimal) int64 {
	if !room.IsPositive() {
		return 0
	}
	return room.Div(price).Floor().IntPart()
}
