package models

import "time"

const (
	EventSignalGenerated    = "signal.generated"
	EventTradeOpened        = "trade.opened"
	EventTradeClosed        = "trade.closed"
	EventTradeCancelled     = "trade.cancelled"
	EventParametersAdjusted = "parameters.adjusted"
)

// Event is a lifecycle notification fanned out to downstream consumers.
type Event struct {
	Type        string      `json:"type"`
	PortfolioID string      `json:"portfolio_id,omitempty"`
	Key         string      `json:"key"`
	Payload     interface{} `json:"payload"`
	OccurredAt  time.Time   `json:"occurred_at"`
}
