package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeStatus string

const (
	TradeOpen      TradeStatus = "OPEN"
	TradeClosed    TradeStatus = "CLOSED"
	TradeCancelled TradeStatus = "CANCELLED"
)

type CloseReason string

const (
	CloseManual     CloseReason = "manual"
	CloseStaleSweep CloseReason = "stale_sweep"
)

// Trade is a simulated position from entry to exit.
type Trade struct {
	ID               string           `json:"id"`
	PortfolioID      string           `json:"portfolio_id"`
	SignalID         string           `json:"signal_id,omitempty"`
	Symbol           string           `json:"symbol"`
	Sector           string           `json:"sector"`
	Direction        Action           `json:"direction"`
	Quantity         int64            `json:"quantity"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	EntryTime        time.Time        `json:"entry_time"`
	Status           TradeStatus      `json:"status"`
	ClosePrice       *decimal.Decimal `json:"close_price,omitempty"`
	CloseTime        *time.Time       `json:"close_time,omitempty"`
	RealizedPL       *decimal.Decimal `json:"realized_pl,omitempty"`
	CloseReason      CloseReason      `json:"close_reason,omitempty"`
	RiskTier         RiskTier         `json:"risk_tier"`
	SignalConfidence float64          `json:"signal_confidence"`
	SentimentScore   float64          `json:"sentiment_score"`
}

// EntryValue is the capital reserved by the trade while it is open.
func (t *Trade) EntryValue() decimal.Decimal {
	return t.EntryPrice.Mul(decimal.NewFromInt(t.Quantity))
}

// PLAt computes (price - entry) * qty * direction sign.
func (t *Trade) PLAt(price decimal.Decimal) decimal.Decimal {
	return price.Sub(t.EntryPrice).
		Mul(decimal.NewFromInt(t.Quantity)).
		Mul(decimal.NewFromInt(t.Direction.Sign()))
}

// BoundedExit caps a short's exit at twice its entry price, where the loss
// equals the entry value reserved when it opened. Reports whether it capped.
func (t *Trade) BoundedExit(price decimal.Decimal) (decimal.Decimal, bool) {
	if t.Direction.Sign() >= 0 {
		return price, false
	}
	limit := t.EntryPrice.Mul(decimal.NewFromInt(2))
	if price.GreaterThan(limit) {
		return limit, true
	}
	return price, false
}

// Won reports a closed trade with positive realized P&L.
func (t *Trade) Won() bool {
	return t.Status == TradeClosed && t.RealizedPL != nil && t.RealizedPL.IsPositive()
}

// Clone returns a deep copy.
func (t *Trade) Clone() *Trade {
	c := *t
	if t.ClosePrice != nil {
		v := *t.ClosePrice
		c.ClosePrice = &v
	}
	if t.CloseTime != nil {
		v := *t.CloseTime
		c.CloseTime = &v
	}
	if t.RealizedPL != nil {
		v := *t.RealizedPL
		c.RealizedPL = &v
	}
	return &c
}
