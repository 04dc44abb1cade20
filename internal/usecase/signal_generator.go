package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"PaperDesk/internal/domain/models"
	domrepo "PaperDesk/internal/domain/repository"
	applogger "PaperDesk/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Risk tiers are fixed and are never touched by the learning loop.
const (
	lowRiskConfidence    = 0.8
	lowRiskScore         = 0.5
	mediumRiskConfidence = 0.6
	mediumRiskScore      = 0.3
)

// RiskTierFor classifies a sentiment reading by the aggregator's confidence.
func RiskTierFor(score, confidence float64) models.RiskTier {
	s := math.Abs(score)
	switch {
	case confidence > lowRiskConfidence && s > lowRiskScore:
		return models.RiskLow
	case confidence > mediumRiskConfidence && s > mediumRiskScore:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// MarketContext is what a decision knows about the market besides sentiment.
type MarketContext struct {
	Sector         string
	Price          decimal.Decimal
	PortfolioValue decimal.Decimal
	Now            time.Time
}

// Generate decides whether a sentiment reading warrants a trade. It returns
// nil when no threshold is crossed or the position would round to zero shares.
func Generate(symbol string, rec *models.SentimentRecord, mc MarketContext, p models.Parameters) *models.Signal {
	if rec == nil || !mc.Price.IsPositive() || !mc.PortfolioValue.IsPositive() {
		return nil
	}
	score, conf := rec.OverallScore, rec.Confidence
	if conf < p.Value(models.ParamConfidenceThreshold, models.GlobalScope) {
		return nil
	}

	var (
		action    models.Action
		threshold float64
	)
	switch {
	case score >= p.BuyThresholdFor(symbol):
		action, threshold = models.ActionBuy, p.BuyThresholdFor(symbol)
	case score <= -p.SellThresholdFor(symbol):
		action, threshold = models.ActionSell, -p.SellThresholdFor(symbol)
	default:
		return nil
	}

	maxPos := decimal.NewFromFloat(p.Value(models.ParamMaxPositionSize, symbol))
	qty := maxPos.Mul(mc.PortfolioValue).Div(mc.Price).Floor().IntPart()
	if qty < 1 {
		return nil
	}

	w := p.SentimentWeight
	confidence := clampUnit(w*math.Abs(score)+(1-w)*conf, 0)
	expiry := p.SignalExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	cmp := ">="
	if action == models.ActionSell {
		cmp = "<="
	}
	return &models.Signal{
		ID:                  uuid.NewString(),
		Symbol:              symbol,
		Sector:              mc.Sector,
		Action:              action,
		Confidence:          confidence,
		SentimentScore:      score,
		SentimentConfidence: conf,
		RiskTier:            RiskTierFor(score, conf),
		TargetQuantity:      qty,
		EstimatedPrice:      mc.Price,
		Reasoning: fmt.Sprintf("sentiment %.2f %s %.2f at confidence %.2f over %d articles",
			score, cmp, threshold, conf, rec.ArticleCount),
		ParamsVersion: p.Version,
		Status:        models.SignalPending,
		CreatedAt:     mc.Now,
		ExpiresAt:     mc.Now.Add(expiry),
	}
}

// SignalGenerator runs analyze, price, capital snapshot and Generate for a symbol.
type SignalGenerator struct {
	portfolioID string
	sentiment   SentimentSource
	prices      domrepo.PriceProvider
	ledger      domrepo.Ledger
	signals     domrepo.SignalStore
	params      ParameterSource
	sectorOf    SectorResolver
	publisher   domrepo.EventPublisher
	metrics     domrepo.Metrics
	log         *applogger.Logger
	now         func() time.Time
}

func NewSignalGenerator(
	portfolioID string,
	sentiment SentimentSource,
	prices domrepo.PriceProvider,
	ledger domrepo.Ledger,
	signals domrepo.SignalStore,
	params ParameterSource,
	sectorOf SectorResolver,
	publisher domrepo.EventPublisher,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *SignalGenerator {
	if l == nil {
		l = applogger.NewNop()
	}
	return &SignalGenerator{
		portfolioID: portfolioID,
		sentiment:   sentiment,
		prices:      prices,
		ledger:      ledger,
		signals:     signals,
		params:      params,
		sectorOf:    sectorOf,
		publisher:   publisher,
		metrics:     metrics,
		log:         l.With(applogger.String("component", "signal_generator")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GenerateSignal returns the persisted PENDING signal, or nil when the
// current sentiment does not justify a trade.
func (g *SignalGenerator) GenerateSignal(ctx context.Context, symbol string) (*models.Signal, *models.SentimentRecord, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, nil, models.ValidationError("symbol", "is required")
	}

	rec, err := g.sentiment.Analyze(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}

	price, err := g.prices.LatestPrice(ctx, symbol)
	if err != nil {
		g.metrics.RecordError("price_unavailable")
		if errors.Is(err, models.ErrPriceUnavailable) {
			return nil, rec, err
		}
		return nil, rec, models.DataUnavailable("latest price for "+symbol, err)
	}

	capital, err := g.ledger.GetCapital(ctx, g.portfolioID)
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return nil, rec, models.ErrCapitalNotSeeded
		}
		return nil, rec, fmt.Errorf("load capital: %w", err)
	}

	sig := Generate(symbol, rec, MarketContext{
		Sector:         g.sectorOf(symbol),
		Price:          price,
		PortfolioValue: capital.TotalPortfolioValue,
		Now:            g.now(),
	}, g.params.Snapshot())
	if sig == nil {
		g.log.Debug("no signal",
			applogger.String("symbol", symbol),
			applogger.Float64("score", rec.OverallScore),
			applogger.Float64("confidence", rec.Confidence))
		return nil, rec, nil
	}

	if err := g.signals.Insert(ctx, sig); err != nil {
		g.metrics.RecordError("signal_store")
		return nil, rec, fmt.Errorf("persist signal: %w", err)
	}
	g.metrics.RecordSignal(string(sig.Action), string(sig.RiskTier))
	g.log.Info("signal generated",
		applogger.String("signal_id", sig.ID),
		applogger.String("symbol", symbol),
		applogger.String("action", string(sig.Action)),
		applogger.String("risk_tier", string(sig.RiskTier)),
		applogger.Int64("quantity", sig.TargetQuantity))

	publish(ctx, g.publisher, g.metrics, g.log, models.Event{
		Type:        models.EventSignalGenerated,
		PortfolioID: g.portfolioID,
		Key:         sig.Symbol,
		Payload:     sig,
		OccurredAt:  sig.CreatedAt,
	})
	return sig, rec, nil
}
