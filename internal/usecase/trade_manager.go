package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PaperDesk/internal/domain/models"
	domrepo "PaperDesk/internal/domain/repository"
	"PaperDesk/pkg/cache"
	applogger "PaperDesk/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const lockRetryDelay = 50 * time.Millisecond

type TradeSettings struct {
	StalenessWindow time.Duration
	LockTTL         time.Duration
}

// TradeManager owns every mutation of a portfolio's capital. Writers are
// serialized by an in-process mutex and, when configured, a distributed lock;
// the ledger's version check catches anything that slips past both.
type TradeManager struct {
	portfolioID string
	ledger      domrepo.Ledger
	signals     domrepo.SignalStore
	prices      domrepo.PriceProvider
	params      ParameterSource
	locker      domrepo.Locker
	publisher   domrepo.EventPublisher
	metrics     domrepo.Metrics
	log         *applogger.Logger
	cfg         TradeSettings
	now         func() time.Time

	mu sync.Mutex
}

func NewTradeManager(
	portfolioID string,
	ledger domrepo.Ledger,
	signals domrepo.SignalStore,
	prices domrepo.PriceProvider,
	params ParameterSource,
	locker domrepo.Locker,
	publisher domrepo.EventPublisher,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg TradeSettings,
) *TradeManager {
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &TradeManager{
		portfolioID: portfolioID,
		ledger:      ledger,
		signals:     signals,
		prices:      prices,
		params:      params,
		locker:      locker,
		publisher:   publisher,
		metrics:     metrics,
		log:         l.With(applogger.String("component", "trade_manager"), applogger.String("portfolio_id", portfolioID)),
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SeedCapital creates the portfolio's capital row unless it already exists.
func (m *TradeManager) SeedCapital(ctx context.Context, cash decimal.Decimal) (*models.CapitalState, error) {
	if !cash.IsPositive() {
		return nil, models.ValidationError("initial_cash", "must be positive")
	}
	err := m.ledger.InitCapital(ctx, models.NewCapitalState(m.portfolioID, cash, m.now()))
	if err != nil && !errors.Is(err, domrepo.ErrDuplicateKey) {
		return nil, fmt.Errorf("seed capital: %w", err)
	}
	return m.Capital(ctx)
}

func (m *TradeManager) Capital(ctx context.Context) (*models.CapitalState, error) {
	c, err := m.ledger.GetCapital(ctx, m.portfolioID)
	if errors.Is(err, domrepo.ErrNotFound) {
		return nil, models.ErrCapitalNotSeeded
	}
	return c, err
}

func (m *TradeManager) Trade(ctx context.Context, id string) (*models.Trade, error) {
	t, err := m.ledger.GetTrade(ctx, id)
	if errors.Is(err, domrepo.ErrNotFound) {
		return nil, models.NotFound("trade", id)
	}
	return t, err
}

// Trades lists OPEN trades, or CLOSED trades newest first, capped at limit.
func (m *TradeManager) Trades(ctx context.Context, status models.TradeStatus, limit int) ([]*models.Trade, error) {
	var (
		out []*models.Trade
		err error
	)
	switch status {
	case models.TradeOpen, "":
		out, err = m.ledger.ListOpen(ctx, m.portfolioID)
	case models.TradeClosed:
		out, err = m.ledger.ListClosed(ctx, m.portfolioID, time.Time{}, time.Time{})
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	default:
		return nil, models.ValidationError("status", "must be OPEN or CLOSED")
	}
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// EvaluateAndOpen sizes a pending signal against current capital and, if any
// quantity fits, opens the trade. Rejections are a normal result, not an error.
func (m *TradeManager) EvaluateAndOpen(ctx context.Context, signalID string) (*models.TradeDecision, error) {
	var decision *models.TradeDecision
	err := m.mutate(ctx, func() error {
		d, err := m.evaluateAndOpen(ctx, signalID)
		decision = d
		return err
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}

func (m *TradeManager) evaluateAndOpen(ctx context.Context, signalID string) (*models.TradeDecision, error) {
	sig, err := m.signals.Get(ctx, signalID)
	if errors.Is(err, domrepo.ErrNotFound) {
		return nil, models.NotFound("signal", signalID)
	}
	if err != nil {
		return nil, fmt.Errorf("load signal: %w", err)
	}
	if sig.Status != models.SignalPending {
		return nil, models.ErrSignalConsumed
	}
	capital, err := m.Capital(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	alloc, err := Evaluate(sig, capital, m.params.Snapshot(), now)
	if err != nil {
		return nil, err
	}
	if !alloc.Accepted {
		if err := m.signals.MarkRejected(ctx, sig.ID, alloc.Reason); err != nil {
			if errors.Is(err, domrepo.ErrNotFound) {
				return nil, models.ErrSignalConsumed
			}
			return nil, fmt.Errorf("reject signal: %w", err)
		}
		m.metrics.RecordAllocation("rejected", string(alloc.Reason))
		m.log.Info("signal rejected",
			applogger.String("signal_id", sig.ID),
			applogger.String("symbol", sig.Symbol),
			applogger.String("reason", string(alloc.Reason)))
		return &models.TradeDecision{Allocation: alloc, Capital: capital}, nil
	}

	t := &models.Trade{
		ID:               uuid.NewString(),
		PortfolioID:      m.portfolioID,
		SignalID:         sig.ID,
		Symbol:           sig.Symbol,
		Sector:           sig.Sector,
		Direction:        sig.Action,
		Quantity:         alloc.Quantity,
		EntryPrice:       sig.EstimatedPrice,
		EntryTime:        now,
		Status:           models.TradeOpen,
		RiskTier:         sig.RiskTier,
		SignalConfidence: sig.Confidence,
		SentimentScore:   sig.SentimentScore,
	}
	next := capital.Clone()
	next.ApplyOpen(t, now)
	if err := m.ledger.OpenTrade(ctx, t, next, capital.Version); err != nil {
		if errors.Is(err, domrepo.ErrStateConflict) {
			return nil, models.ErrSignalConsumed
		}
		return nil, err
	}

	outcome := "accepted"
	if alloc.Shrunk {
		outcome = "shrunk"
	}
	m.metrics.RecordAllocation(outcome, string(alloc.Reason))
	m.metrics.RecordCash(m.portfolioID, next.CashAvailable.InexactFloat64())
	m.log.Info("trade opened",
		applogger.String("trade_id", t.ID),
		applogger.String("symbol", t.Symbol),
		applogger.String("direction", string(t.Direction)),
		applogger.Int64("quantity", t.Quantity),
		applogger.Bool("shrunk", alloc.Shrunk))
	publish(ctx, m.publisher, m.metrics, m.log, models.Event{
		Type:        models.EventTradeOpened,
		PortfolioID: m.portfolioID,
		Key:         t.Symbol,
		Payload:     t,
		OccurredAt:  now,
	})
	return &models.TradeDecision{Allocation: alloc, Trade: t, Capital: next}, nil
}

// Close settles an open trade at price, or at the latest market price when price is nil.
func (m *TradeManager) Close(ctx context.Context, tradeID string, price *decimal.Decimal) (*models.Trade, error) {
	if price != nil && !price.IsPositive() {
		return nil, models.ValidationError("price", "must be positive")
	}
	var out *models.Trade
	err := m.mutate(ctx, func() error {
		t, err := m.openTrade(ctx, tradeID)
		if err != nil {
			return err
		}
		closeAt := price
		if closeAt == nil {
			p, err := m.prices.LatestPrice(ctx, t.Symbol)
			if err != nil {
				m.metrics.RecordError("price_unavailable")
				if errors.Is(err, models.ErrPriceUnavailable) {
					return err
				}
				return models.DataUnavailable("latest price for "+t.Symbol, err)
			}
			closeAt = &p
		}
		out, err = m.settle(ctx, t, *closeAt, models.CloseManual)
		return err
	})
	return out, err
}

// Cancel voids an open trade and refunds its entry value without P&L.
func (m *TradeManager) Cancel(ctx context.Context, tradeID string) (*models.Trade, error) {
	var out *models.Trade
	err := m.mutate(ctx, func() error {
		t, err := m.openTrade(ctx, tradeID)
		if err != nil {
			return err
		}
		capital, err := m.Capital(ctx)
		if err != nil {
			return err
		}
		now := m.now()
		next := capital.Clone()
		next.ApplyCancel(t, now)

		done := t.Clone()
		done.Status = models.TradeCancelled
		done.CloseTime = &now
		if err := m.ledger.SettleTrade(ctx, done, next, capital.Version); err != nil {
			if errors.Is(err, domrepo.ErrStateConflict) {
				return models.ErrTradeNotOpen
			}
			return err
		}
		m.metrics.RecordCash(m.portfolioID, next.CashAvailable.InexactFloat64())
		m.log.Info("trade cancelled", applogger.String("trade_id", done.ID), applogger.String("symbol", done.Symbol))
		publish(ctx, m.publisher, m.metrics, m.log, models.Event{
			Type:        models.EventTradeCancelled,
			PortfolioID: m.portfolioID,
			Key:         done.Symbol,
			Payload:     done,
			OccurredAt:  now,
		})
		out = done
		return nil
	})
	return out, err
}

// SweepStale closes trades that stayed open longer than the staleness window
// at the latest known price, falling back to the entry price.
func (m *TradeManager) SweepStale(ctx context.Context) (int, error) {
	open, err := m.ledger.ListOpen(ctx, m.portfolioID)
	if err != nil {
		return 0, fmt.Errorf("list open trades: %w", err)
	}
	cutoff := m.now().Add(-m.cfg.StalenessWindow)
	closed := 0
	for _, t := range open {
		if t.EntryTime.After(cutoff) {
			continue
		}
		price := t.EntryPrice
		if p, err := m.prices.LatestPrice(ctx, t.Symbol); err == nil {
			price = p
		} else {
			m.log.Warn("no price for stale trade, closing at entry",
				applogger.String("trade_id", t.ID), applogger.String("symbol", t.Symbol), applogger.Error(err))
		}
		err := m.mutate(ctx, func() error {
			cur, err := m.openTrade(ctx, t.ID)
			if err != nil {
				return err
			}
			_, err = m.settle(ctx, cur, price, models.CloseStaleSweep)
			return err
		})
		switch {
		case err == nil:
			closed++
		case errors.Is(err, models.ErrTradeNotOpen):
		default:
			return closed, err
		}
	}
	if closed > 0 {
		m.log.Info("stale trades closed", applogger.Int("count", closed))
	}
	return closed, nil
}

// RunSweeper calls SweepStale every interval until ctx is done.
func (m *TradeManager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.SweepStale(ctx); err != nil {
				m.metrics.RecordError("stale_sweep")
				m.log.Error("stale sweep failed", applogger.Error(err))
			}
		}
	}
}

func (m *TradeManager) openTrade(ctx context.Context, id string) (*models.Trade, error) {
	t, err := m.Trade(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.PortfolioID != m.portfolioID {
		return nil, models.NotFound("trade", id)
	}
	if t.Status != models.TradeOpen {
		return nil, models.ErrTradeNotOpen
	}
	return t, nil
}

func (m *TradeManager) settle(ctx context.Context, t *models.Trade, price decimal.Decimal, reason models.CloseReason) (*models.Trade, error) {
	capital, err := m.Capital(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if bounded, capped := t.BoundedExit(price); capped {
		m.log.Warn("short stopped out at collateral",
			applogger.String("trade_id", t.ID),
			applogger.String("market_price", price.String()),
			applogger.String("exit_price", bounded.String()))
		price = bounded
	}
	pl := t.PLAt(price)
	next := capital.Clone()
	next.ApplyClose(t, pl, now)

	done := t.Clone()
	done.Status = models.TradeClosed
	done.ClosePrice = &price
	done.CloseTime = &now
	done.RealizedPL = &pl
	done.CloseReason = reason
	if err := m.ledger.SettleTrade(ctx, done, next, capital.Version); err != nil {
		if errors.Is(err, domrepo.ErrStateConflict) {
			return nil, models.ErrTradeNotOpen
		}
		return nil, err
	}

	m.metrics.RecordTradeClosed(done.Symbol, string(reason), pl.InexactFloat64())
	m.metrics.RecordCash(m.portfolioID, next.CashAvailable.InexactFloat64())
	m.log.Info("trade closed",
		applogger.String("trade_id", done.ID),
		applogger.String("symbol", done.Symbol),
		applogger.String("reason", string(reason)),
		applogger.String("realized_pl", pl.StringFixed(2)))
	publish(ctx, m.publisher, m.metrics, m.log, models.Event{
		Type:        models.EventTradeClosed,
		PortfolioID: m.portfolioID,
		Key:         done.Symbol,
		Payload:     done,
		OccurredAt:  now,
	})
	return done, nil
}

// mutate runs fn as the portfolio's single writer. A version conflict or a
// busy distributed lock is retried once before surfacing ErrConcurrency.
func (m *TradeManager) mutate(ctx context.Context, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	release, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	err = fn()
	if errors.Is(err, domrepo.ErrVersionConflict) {
		m.log.Warn("capital version moved, retrying")
		err = fn()
		if errors.Is(err, domrepo.ErrVersionConflict) {
			m.metrics.RecordError("concurrency_conflict")
			return models.NewDomainError(models.KindConcurrencyConflict, models.ErrConcurrency.Code, models.ErrConcurrency.Message, err)
		}
	}
	return err
}

func (m *TradeManager) acquire(ctx context.Context) (func(), error) {
	if m.locker == nil {
		return func() {}, nil
	}
	key := cache.GenerateKey("lock", "portfolio", m.portfolioID)
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := m.locker.TryLock(ctx, key, m.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("portfolio lock: %w", err)
		}
		if ok {
			return func() {
				if err := m.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
					m.log.Warn("portfolio unlock failed", applogger.Error(err))
				}
			}, nil
		}
		if attempt == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(lockRetryDelay):
			}
		}
	}
	m.metrics.RecordError("concurrency_conflict")
	return nil, models.ErrConcurrency
}
