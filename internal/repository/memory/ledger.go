package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"PaperDesk/internal/domain/models"
	"PaperDesk/internal/domain/repository"
)

// Ledger is an in-memory implementation of repository.Ledger. Trade writes,
// capital writes and the linked signal transition happen under one lock.
type Ledger struct {
	mu      sync.RWMutex
	capital map[string]*models.CapitalState
	trades  map[string]*models.Trade
	signals *SignalStore
}

// NewLedger creates a ledger. signals may be nil when trades are opened without signals.
func NewLedger(signals *SignalStore) *Ledger {
	return &Ledger{
		capital: make(map[string]*models.CapitalState),
		trades:  make(map[string]*models.Trade),
		signals: signals,
	}
}

var _ repository.Ledger = (*Ledger)(nil)

func (l *Ledger) InitCapital(_ context.Context, c *models.CapitalState) error {
	if c == nil || c.PortfolioID == "" {
		return repository.ErrInvalidInput
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.capital[c.PortfolioID]; exists {
		return repository.ErrDuplicateKey
	}
	cp := c.Clone()
	if cp.Version == 0 {
		cp.Version = 1
	}
	c.Version = cp.Version
	l.capital[c.PortfolioID] = cp
	return nil
}

func (l *Ledger) GetCapital(_ context.Context, portfolioID string) (*models.CapitalState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.capital[portfolioID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c.Clone(), nil
}

// OpenTrade stores t and next. On success next.Version is advanced.
func (l *Ledger) OpenTrade(_ context.Context, t *models.Trade, next *models.CapitalState, expectedVersion int64) error {
	if t == nil || t.ID == "" || next == nil || t.Status != models.TradeOpen {
		return repository.ErrInvalidInput
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkVersion(next.PortfolioID, expectedVersion); err != nil {
		return err
	}
	if _, exists := l.trades[t.ID]; exists {
		return repository.ErrDuplicateKey
	}
	if t.SignalID != "" && l.signals != nil {
		if err := l.signals.accept(t.SignalID); err != nil {
			return err
		}
	}

	l.trades[t.ID] = t.Clone()
	l.storeCapital(next, expectedVersion)
	return nil
}

// SettleTrade stores a CLOSED or CANCELLED trade that is currently OPEN.
func (l *Ledger) SettleTrade(_ context.Context, t *models.Trade, next *models.CapitalState, expectedVersion int64) error {
	if t == nil || next == nil || (t.Status != models.TradeClosed && t.Status != models.TradeCancelled) {
		return repository.ErrInvalidInput
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.trades[t.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != models.TradeOpen {
		return repository.ErrStateConflict
	}
	if err := l.checkVersion(next.PortfolioID, expectedVersion); err != nil {
		return err
	}

	l.trades[t.ID] = t.Clone()
	l.storeCapital(next, expectedVersion)
	return nil
}

func (l *Ledger) checkVersion(portfolioID string, expected int64) error {
	cur, ok := l.capital[portfolioID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != expected {
		return repository.ErrVersionConflict
	}
	return nil
}

func (l *Ledger) storeCapital(next *models.CapitalState, expected int64) {
	next.Version = expected + 1
	l.capital[next.PortfolioID] = next.Clone()
}

func (l *Ledger) GetTrade(_ context.Context, id string) (*models.Trade, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.trades[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t.Clone(), nil
}

// ListOpen returns open trades ordered by entry time.
func (l *Ledger) ListOpen(_ context.Context, portfolioID string) ([]*models.Trade, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*models.Trade, 0)
	for _, t := range l.trades {
		if t.PortfolioID == portfolioID && t.Status == models.TradeOpen {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out, nil
}

// ListClosed returns CLOSED trades with close time in [from, to), ordered by close time.
func (l *Ledger) ListClosed(_ context.Context, portfolioID string, from, to time.Time) ([]*models.Trade, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*models.Trade, 0)
	for _, t := range l.trades {
		if t.PortfolioID != portfolioID || t.Status != models.TradeClosed || t.CloseTime == nil {
			continue
		}
		ct := *t.CloseTime
		if !from.IsZero() && ct.Before(from) {
			continue
		}
		if !to.IsZero() && !ct.Before(to) {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CloseTime.Before(*out[j].CloseTime) })
	return out, nil
}
