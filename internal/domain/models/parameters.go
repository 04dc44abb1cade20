package models

import (
	"fmt"
	"strings"
	"time"
)

// Tunable parameter names as stored in the adjustment history.
const (
	ParamBuyThreshold        = "buy_threshold"
	ParamSellThreshold       = "sell_threshold"
	ParamConfidenceThreshold = "confidence_threshold"
	ParamSentimentWeight     = "sentiment_weight"
	ParamMaxPositionSize     = "max_position_size"
	ParamMaxSectorAllocation = "max_sector_allocation"
)

// GlobalScope marks an adjustment that applies to every symbol and sector.
const GlobalScope = "global"

type Bounds struct {
	Min float64
	Max float64
}

func (b Bounds) Clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// ParameterBounds limits every value the learning loop may write.
var ParameterBounds = map[string]Bounds{
	ParamBuyThreshold:        {Min: 0.05, Max: 0.9},
	ParamSellThreshold:       {Min: 0.05, Max: 0.9},
	ParamConfidenceThreshold: {Min: 0.3, Max: 0.95},
	ParamSentimentWeight:     {Min: 0.1, Max: 0.9},
	ParamMaxPositionSize:     {Min: 0.01, Max: 0.25},
	ParamMaxSectorAllocation: {Min: 0.05, Max: 0.5},
}

// Parameters is an immutable snapshot of the tunable decision thresholds.
// Version counts the adjustments folded into it.
type Parameters struct {
	Version             int64              `json:"version"`
	BuyThreshold        float64            `json:"buy_threshold"`
	SellThreshold       float64            `json:"sell_threshold"`
	ConfidenceThreshold float64            `json:"confidence_threshold"`
	SentimentWeight     float64            `json:"sentiment_weight"`
	MaxPositionSize     float64            `json:"max_position_size"`
	MaxSectorAllocation float64            `json:"max_sector_allocation"`
	MaxPositions        int                `json:"max_positions"`
	SignalExpiry        time.Duration      `json:"signal_expiry"`
	Overrides           map[string]float64 `json:"overrides,omitempty"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// ScopeKey builds the override key for a scoped parameter, e.g. "buy_threshold@AAPL".
func ScopeKey(name, scope string) string {
	return name + "@" + scope
}

// Value resolves a parameter for scope, falling back to the global value.
func (p Parameters) Value(name, scope string) float64 {
	if scope != "" && scope != GlobalScope {
		if v, ok := p.Overrides[ScopeKey(name, scope)]; ok {
			return v
		}
	}
	return p.global(name)
}

func (p Parameters) BuyThresholdFor(symbol string) float64 {
	return p.Value(ParamBuyThreshold, symbol)
}

func (p Parameters) SellThresholdFor(symbol string) float64 {
	return p.Value(ParamSellThreshold, symbol)
}

func (p Parameters) MaxSectorAllocationFor(sector string) float64 {
	return p.Value(ParamMaxSectorAllocation, sector)
}

func (p Parameters) global(name string) float64 {
	switch name {
	case ParamBuyThreshold:
		return p.BuyThreshold
	case ParamSellThreshold:
		return p.SellThreshold
	case ParamConfidenceThreshold:
		return p.ConfidenceThreshold
	case ParamSentimentWeight:
		return p.SentimentWeight
	case ParamMaxPositionSize:
		return p.MaxPositionSize
	case ParamMaxSectorAllocation:
		return p.MaxSectorAllocation
	default:
		return 0
	}
}

// Apply returns a new snapshot with adj folded in. The receiver is not modified.
func (p Parameters) Apply(adj ParameterAdjustment) (Parameters, error) {
	if _, ok := ParameterBounds[adj.ParameterName]; !ok {
		return p, fmt.Errorf("unknown parameter %q", adj.ParameterName)
	}
	next := p
	next.Overrides = make(map[string]float64, len(p.Overrides)+1)
	for k, v := range p.Overrides {
		next.Overrides[k] = v
	}

	scope := strings.TrimSpace(adj.Scope)
	if scope == "" || scope == GlobalScope {
		switch adj.ParameterName {
		case ParamBuyThreshold:
			next.BuyThreshold = adj.NewValue
		case ParamSellThreshold:
			next.SellThreshold = adj.NewValue
		case ParamConfidenceThreshold:
			next.ConfidenceThreshold = adj.NewValue
		case ParamSentimentWeight:
			next.SentimentWeight = adj.NewValue
		case ParamMaxPositionSize:
			next.MaxPositionSize = adj.NewValue
		case ParamMaxSectorAllocation:
			next.MaxSectorAllocation = adj.NewValue
		}
	} else {
		next.Overrides[ScopeKey(adj.ParameterName, scope)] = adj.NewValue
	}
	next.Version++
	next.UpdatedAt = adj.CreatedAt
	return next, nil
}
