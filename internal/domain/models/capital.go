package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CapitalState is the single mutable aggregate of a portfolio.
// Invariant: CashAvailable + sum(open entry values) == TotalPortfolioValue.
type CapitalState struct {
	PortfolioID         string                     `json:"portfolio_id"`
	CashAvailable       decimal.Decimal            `json:"cash_available"`
	TotalPortfolioValue decimal.Decimal            `json:"total_portfolio_value"`
	RealizedPL          decimal.Decimal            `json:"realized_pl"`
	OpenPositionCount   int                        `json:"open_position_count"`
	SectorAllocation    map[string]decimal.Decimal `json:"sector_allocation"`
	SymbolExposure      map[string]decimal.Decimal `json:"symbol_exposure"`
	Version             int64                      `json:"version"`
	UpdatedAt           time.Time                  `json:"updated_at"`
}

func NewCapitalState(portfolioID string, cash decimal.Decimal, now time.Time) *CapitalState {
	return &CapitalState{
		PortfolioID:         portfolioID,
		CashAvailable:       cash,
		TotalPortfolioValue: cash,
		RealizedPL:          decimal.Zero,
		SectorAllocation:    map[string]decimal.Decimal{},
		SymbolExposure:      map[string]decimal.Decimal{},
		UpdatedAt:           now,
	}
}

func (c *CapitalState) Clone() *CapitalState {
	out := *c
	out.SectorAllocation = make(map[string]decimal.Decimal, len(c.SectorAllocation))
	for k, v := range c.SectorAllocation {
		out.SectorAllocation[k] = v
	}
	out.SymbolExposure = make(map[string]decimal.Decimal, len(c.SymbolExposure))
	for k, v := range c.SymbolExposure {
		out.SymbolExposure[k] = v
	}
	return &out
}

func (c *CapitalState) SectorAmount(sector string) decimal.Decimal {
	return c.SectorAllocation[sector]
}

func (c *CapitalState) SymbolAmount(symbol string) decimal.Decimal {
	return c.SymbolExposure[symbol]
}

// Invested is the capital currently reserved by open trades.
func (c *CapitalState) Invested() decimal.Decimal {
	return c.TotalPortfolioValue.Sub(c.CashAvailable)
}

// ApplyOpen reserves the trade's entry value.
func (c *CapitalState) ApplyOpen(t *Trade, now time.Time) {
	v := t.EntryValue()
	c.CashAvailable = c.CashAvailable.Sub(v)
	c.OpenPositionCount++
	c.adjust(t, v)
	c.UpdatedAt = now
}

// ApplyClose releases the entry value plus realized P&L. pl must not be below
// the negated entry value; see Trade.BoundedExit.
func (c *CapitalState) ApplyClose(t *Trade, pl decimal.Decimal, now time.Time) {
	v := t.EntryValue()
	c.CashAvailable = c.CashAvailable.Add(v).Add(pl)
	c.TotalPortfolioValue = c.TotalPortfolioValue.Add(pl)
	c.RealizedPL = c.RealizedPL.Add(pl)
	c.OpenPositionCount--
	c.adjust(t, v.Neg())
	c.UpdatedAt = now
}

// ApplyCancel refunds the entry value without P&L.
func (c *CapitalState) ApplyCancel(t *Trade, now time.Time) {
	v := t.EntryValue()
	c.CashAvailable = c.CashAvailable.Add(v)
	c.OpenPositionCount--
	c.adjust(t, v.Neg())
	c.UpdatedAt = now
}

func (c *CapitalState) adjust(t *Trade, delta decimal.Decimal) {
	if c.SectorAllocation == nil {
		c.SectorAllocation = map[string]decimal.Decimal{}
	}
	if c.SymbolExposure == nil {
		c.SymbolExposure = map[string]decimal.Decimal{}
	}
	sector := c.SectorAllocation[t.Sector].Add(delta)
	if sector.IsZero() {
		delete(c.SectorAllocation, t.Sector)
	} else {
		c.SectorAllocation[t.Sector] = sector
	}
	symbol := c.SymbolExposure[t.Symbol].Add(delta)
	if symbol.IsZero() {
		delete(c.SymbolExposure, t.Symbol)
	} else {
		c.SymbolExposure[t.Symbol] = symbol
	}
}
