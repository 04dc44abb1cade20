package models

// Requests for the desk HTTP endpoints.

type SentimentRequest struct {
	Symbol string `param:"symbol" validate:"required,ticker"`
}

type GenerateSignalRequest struct {
	Symbol string `json:"symbol" validate:"required,ticker"`
}

type OpenTradeRequest struct {
	SignalID string `json:"signal_id" validate:"required"`
}

type TradeIDRequest struct {
	ID string `param:"id" validate:"required"`
}

type CloseTradeRequest struct {
	ID    string   `param:"id" validate:"required"`
	Price *float64 `json:"price" validate:"omitempty,gt=0"`
}

type LearningRunRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type PatternsRequest struct {
	Type           string `query:"type" validate:"omitempty,oneof=symbol sector risk_tier"`
	Scope          string `query:"scope"`
	RunID          string `query:"run_id"`
	MinOccurrences int    `query:"min_occurrences" validate:"gte=0"`
	Limit          int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type AdjustmentsRequest struct {
	From string `query:"from"`
	To   string `query:"to"`
}

type TradesRequest struct {
	Status string `query:"status" default:"OPEN" validate:"oneof=OPEN CLOSED"`
	Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}
