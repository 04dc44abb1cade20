package usecase

import (
	"context"
	"strings"
	"time"

	"PaperDesk/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Desk is the single entry point adapters use to drive the decision core.
type Desk struct {
	sentiment *SentimentAggregator
	signals   *SignalGenerator
	trades    *TradeManager
	learning  *LearningLoop
	params    *ParameterBook
}

func NewDesk(sentiment *SentimentAggregator, signals *SignalGenerator, trades *TradeManager, learning *LearningLoop, params *ParameterBook) *Desk {
	return &Desk{sentiment: sentiment, signals: signals, trades: trades, learning: learning, params: params}
}

func (d *Desk) Analyze(ctx context.Context, symbol string) (*models.SentimentRecord, error) {
	return d.sentiment.Analyze(ctx, symbol)
}

func (d *Desk) AnalyzeMany(ctx context.Context, symbols []string) (map[string]*models.SentimentRecord, map[string]error) {
	return d.sentiment.AnalyzeMany(ctx, symbols)
}

func (d *Desk) GenerateSignal(ctx context.Context, symbol string) (*models.SignalResult, error) {
	sig, rec, err := d.signals.GenerateSignal(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &models.SignalResult{Generated: sig != nil, Signal: sig, Sentiment: rec}, nil
}

func (d *Desk) OpenTrade(ctx context.Context, signalID string) (*models.TradeDecision, error) {
	return d.trades.EvaluateAndOpen(ctx, strings.TrimSpace(signalID))
}

// CloseTrade settles at price, or at the latest market price when price is nil.
func (d *Desk) CloseTrade(ctx context.Context, tradeID string, price *float64) (*models.Trade, error) {
	var p *decimal.Decimal
	if price != nil {
		v := decimal.NewFromFloat(*price)
		p = &v
	}
	return d.trades.Close(ctx, tradeID, p)
}

func (d *Desk) CancelTrade(ctx context.Context, tradeID string) (*models.Trade, error) {
	return d.trades.Cancel(ctx, tradeID)
}

func (d *Desk) Trade(ctx context.Context, tradeID string) (*models.Trade, error) {
	return d.trades.Trade(ctx, tradeID)
}

func (d *Desk) Trades(ctx context.Context, status models.TradeStatus, limit int) ([]*models.Trade, error) {
	return d.trades.Trades(ctx, status, limit)
}

func (d *Desk) Capital(ctx context.Context) (*models.CapitalState, error) {
	return d.trades.Capital(ctx)
}

func (d *Desk) Parameters() models.Parameters {
	return d.params.Snapshot()
}

func (d *Desk) RunLearning(ctx context.Context, from, to time.Time) (*models.LearningResult, error) {
	return d.learning.Run(ctx, from, to)
}

func (d *Desk) LearningRuns(ctx context.Context, limit int) ([]models.LearningRun, error) {
	return d.learning.Runs(ctx, limit)
}

func (d *Desk) Patterns(ctx context.Context, f models.PatternFilter) ([]models.Pattern, error) {
	return d.learning.Patterns(ctx, f)
}

func (d *Desk) Adjustments(ctx context.Context, from, to time.Time) ([]models.ParameterAdjustment, error) {
	return d.learning.Adjustments(ctx, from, to)
}
