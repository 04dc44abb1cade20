package repository

import (
	"context"
	"time"

	"PaperDesk/internal/domain/models"

	"github.com/shopspring/decimal"
)

// SentimentStore keeps the append-only history of sentiment snapshots.
type SentimentStore interface {
	Insert(ctx context.Context, r *models.SentimentRecord) error
	Latest(ctx context.Context, symbol string) (*models.SentimentRecord, error)
	// AsOf returns the newest record created at or before t.
	AsOf(ctx context.Context, symbol string, t time.Time) (*models.SentimentRecord, error)
	History(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.SentimentRecord, error)
}

type SignalStore interface {
	Insert(ctx context.Context, s *models.Signal) error
	Get(ctx context.Context, id string) (*models.Signal, error)
	// MarkRejected moves a PENDING signal to REJECTED. ErrNotFound when it is not pending.
	MarkRejected(ctx context.Context, id string, reason models.RejectReason) error
}

// Ledger owns trades and the capital aggregate. Every write carries the
// capital version it was computed from and fails with ErrVersionConflict
// if the stored version differs.
type Ledger interface {
	InitCapital(ctx context.Context, c *models.CapitalState) error
	GetCapital(ctx context.Context, portfolioID string) (*models.CapitalState, error)
	// OpenTrade persists an OPEN trade, the debited capital and, when the
	// trade carries a SignalID, flips that signal from PENDING to ACCEPTED.
	OpenTrade(ctx context.Context, t *models.Trade, next *models.CapitalState, expectedVersion int64) error
	// SettleTrade persists a CLOSED or CANCELLED trade that was OPEN, with the credited capital.
	SettleTrade(ctx context.Context, t *models.Trade, next *models.CapitalState, expectedVersion int64) error
	GetTrade(ctx context.Context, id string) (*models.Trade, error)
	ListOpen(ctx context.Context, portfolioID string) ([]*models.Trade, error)
	// ListClosed returns CLOSED trades whose close time falls in [from, to).
	// Zero bounds are open-ended.
	ListClosed(ctx context.Context, portfolioID string, from, to time.Time) ([]*models.Trade, error)
}

// LearningStore persists learning runs together with what they produced.
type LearningStore interface {
	// BeginRun records a new run for the range. ErrDuplicateKey when the range is
	// already held by a completed run, or by a running one started at or after
	// staleBefore. Older running rows are marked FAILED and the range is reclaimed.
	// Failed runs are kept as history.
	BeginRun(ctx context.Context, run *models.LearningRun, staleBefore time.Time) error
	// LastCompletedEnd returns the latest range end of a completed run, zero when none.
	LastCompletedEnd(ctx context.Context) (time.Time, error)
	// CompleteRun writes the run summary, patterns, adjustments and outcomes atomically.
	CompleteRun(ctx context.Context, run *models.LearningRun, patterns []models.Pattern,
		adjustments []models.ParameterAdjustment, outcomes []models.AdjustmentOutcome) error
	FailRun(ctx context.Context, runID, reason string) error
	ListRuns(ctx context.Context, limit int) ([]models.LearningRun, error)
	ListPatterns(ctx context.Context, f models.PatternFilter) ([]models.Pattern, error)
	// ListAdjustments returns adjustments created in [from, to) in creation order,
	// each with its recorded outcomes. Zero bounds are open-ended.
	ListAdjustments(ctx context.Context, from, to time.Time) ([]models.ParameterAdjustment, error)
}

type NewsProvider interface {
	CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.Article, error)
}

type PriceProvider interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// MarketStream delivers last-trade prints from a live feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// TickSink receives batches of market ticks for archiving or fan-out.
type TickSink interface {
	StoreBatch(ctx context.Context, ticks []models.Tick) error
}

type EventPublisher interface {
	Publish(ctx context.Context, e models.Event) error
	Close() error
}

// Locker is a best-effort mutual exclusion primitive with expiry.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Cache stores JSON-serializable values by key.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

type Metrics interface {
	RecordSentiment(symbol string, score, confidence float64, articles int)
	RecordSignal(action, tier string)
	RecordAllocation(outcome, reason string)
	RecordTradeClosed(symbol, reason string, pl float64)
	RecordCash(portfolioID string, cash float64)
	RecordLearningRun(status string, patterns, adjustments int)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
