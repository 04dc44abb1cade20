package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PatternType string

const (
	PatternSymbol   PatternType = "symbol"
	PatternSector   PatternType = "sector"
	PatternRiskTier PatternType = "risk_tier"
)

func (t PatternType) Valid() bool {
	return t == PatternSymbol || t == PatternSector || t == PatternRiskTier
}

// Pattern is a recurring outcome over closed trades sharing one attribute.
type Pattern struct {
	ID              string          `json:"id"`
	RunID           string          `json:"run_id"`
	PatternType     PatternType     `json:"pattern_type"`
	Scope           string          `json:"scope"`
	SuccessRate     float64         `json:"success_rate"`
	AveragePL       decimal.Decimal `json:"average_pl"`
	OccurrenceCount int             `json:"occurrence_count"`
	CreatedAt       time.Time       `json:"created_at"`
}

type PatternFilter struct {
	Type           PatternType
	Scope          string
	RunID          string
	MinOccurrences int
	Limit          int
}

// Insight is a human-readable finding about what worked.
type Insight struct {
	Kind       string  `json:"kind"`
	Scope      string  `json:"scope"`
	Statement  string  `json:"statement"`
	WinRate    float64 `json:"win_rate"`
	Count      int     `json:"count"`
	Confidence float64 `json:"confidence"`
	Impact     float64 `json:"impact"`
}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// LearningRun records one pass of the learning loop over [RangeStart, RangeEnd).
type LearningRun struct {
	ID                 string     `json:"id"`
	RangeStart         time.Time  `json:"range_start"`
	RangeEnd           time.Time  `json:"range_end"`
	Status             RunStatus  `json:"status"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	TradesAnalyzed     int        `json:"trades_analyzed"`
	PatternsPublished  int        `json:"patterns_published"`
	AdjustmentsApplied int        `json:"adjustments_applied"`
	OutcomesRecorded   int        `json:"outcomes_recorded"`
	Insights           []Insight  `json:"insights,omitempty"`
	Error              string     `json:"error,omitempty"`
}

// ParameterAdjustment is an append-only record of one threshold change.
type ParameterAdjustment struct {
	ID            string              `json:"id"`
	RunID         string              `json:"run_id"`
	ParameterName string              `json:"parameter_name"`
	Scope         string              `json:"scope"`
	OldValue      float64             `json:"old_value"`
	NewValue      float64             `json:"new_value"`
	Reason        string              `json:"reason"`
	Confidence    float64             `json:"confidence"`
	CreatedAt     time.Time           `json:"created_at"`
	Outcomes      []AdjustmentOutcome `json:"outcomes,omitempty"`
}

type Verdict string

const (
	VerdictImproved     Verdict = "improved"
	VerdictDegraded     Verdict = "degraded"
	VerdictInconclusive Verdict = "inconclusive"
)

// AdjustmentOutcome is a later evaluation of an adjustment, stored beside it.
type AdjustmentOutcome struct {
	ID            string    `json:"id"`
	AdjustmentID  string    `json:"adjustment_id"`
	RunID         string    `json:"run_id"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
	WinRateBefore float64   `json:"win_rate_before"`
	WinRateAfter  float64   `json:"win_rate_after"`
	TradesBefore  int       `json:"trades_before"`
	TradesAfter   int       `json:"trades_after"`
	Verdict       Verdict   `json:"verdict"`
}

// LearningResult is what runLearningCycle reports back.
type LearningResult struct {
	Run         *LearningRun          `json:"run,omitempty"`
	Skipped     bool                  `json:"skipped"`
	SkipReason  string                `json:"skip_reason,omitempty"`
	Patterns    []Pattern             `json:"patterns"`
	Adjustments []ParameterAdjustment `json:"adjustments"`
	Outcomes    []AdjustmentOutcome   `json:"outcomes"`
	Insights    []Insight             `json:"insights"`
}
