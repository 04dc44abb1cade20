package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Sign is +1 for BUY and -1 for SELL.
func (a Action) Sign() int64 {
	if a == ActionSell {
		return -1
	}
	return 1
}

func (a Action) Valid() bool { return a == ActionBuy || a == ActionSell }

type RiskTier string

const (
	RiskLow    RiskTier = "LOW"
	RiskMedium RiskTier = "MEDIUM"
	RiskHigh   RiskTier = "HIGH"
)

type SignalStatus string

const (
	SignalPending  SignalStatus = "PENDING"
	SignalAccepted SignalStatus = "ACCEPTED"
	SignalRejected SignalStatus = "REJECTED"
)

// Signal is a single-use trade recommendation.
type Signal struct {
	ID                  string          `json:"id"`
	Symbol              string          `json:"symbol"`
	Sector              string          `json:"sector"`
	Action              Action          `json:"action"`
	Confidence          float64         `json:"confidence"`
	SentimentScore      float64         `json:"sentiment_score"`
	SentimentConfidence float64         `json:"sentiment_confidence"`
	RiskTier            RiskTier        `json:"risk_tier"`
	TargetQuantity      int64           `json:"target_quantity"`
	EstimatedPrice      decimal.Decimal `json:"estimated_price"`
	Reasoning           string          `json:"reasoning"`
	ParamsVersion       int64           `json:"params_version"`
	Status              SignalStatus    `json:"status"`
	RejectReason        RejectReason    `json:"reject_reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	ExpiresAt           time.Time       `json:"expires_at"`
}

// Expired reports whether the signal can no longer be acted on at now.
func (s *Signal) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SignalResult is the outcome of generateSignal. Signal is nil when the
// sentiment did not cross a threshold.
type SignalResult struct {
	Generated bool             `json:"generated"`
	Signal    *Signal          `json:"signal,omitempty"`
	Sentiment *SentimentRecord `json:"sentiment"`
}
