package pricebook

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"PaperDesk/internal/domain/models"
	domrepo "PaperDesk/internal/domain/repository"
	applogger "PaperDesk/pkg/logger"

	"github.com/shopspring/decimal"
)

// QuoteSource fetches a current price on demand.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type entry struct {
	price decimal.Decimal
	at    time.Time
}

// PriceBook keeps the last traded price per symbol. Prices older than maxAge
// are refreshed from the fallback quote source when one is configured.
type PriceBook struct {
	mu       sync.RWMutex
	prices   map[string]entry
	fallback QuoteSource
	maxAge   time.Duration
	now      func() time.Time
	l        *applogger.Logger
}

type Option func(*PriceBook)

func WithFallback(q QuoteSource) Option {
	return func(b *PriceBook) { b.fallback = q }
}

// WithMaxAge sets how long a streamed price is trusted. Zero trusts it forever.
func WithMaxAge(d time.Duration) Option {
	return func(b *PriceBook) { b.maxAge = d }
}

func WithLogger(l *applogger.Logger) Option {
	return func(b *PriceBook) {
		if l != nil {
			b.l = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *PriceBook) { b.now = now }
}

func New(opts ...Option) *PriceBook {
	b := &PriceBook{
		prices: make(map[string]entry),
		now:    time.Now,
		l:      applogger.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ domrepo.PriceProvider = (*PriceBook)(nil)

// Update records a tick. Older prints than the stored one are ignored.
func (b *PriceBook) Update(t models.Tick) {
	if t.Price <= 0 || t.Symbol == "" {
		return
	}
	sym := strings.ToUpper(t.Symbol)
	at := t.Timestamp
	if at.IsZero() {
		at = b.now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.prices[sym]; ok && cur.at.After(at) {
		return
	}
	b.prices[sym] = entry{price: decimal.NewFromFloat(t.Price), at: at}
}

// Process lets the book sit at the end of the tick pipeline.
func (b *PriceBook) Process(_ context.Context, t *models.Tick) error {
	if t != nil {
		b.Update(*t)
	}
	return nil
}

func (b *PriceBook) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	sym := strings.ToUpper(symbol)
	b.mu.RLock()
	cur, ok := b.prices[sym]
	b.mu.RUnlock()

	fresh := ok && (b.maxAge <= 0 || b.now().Sub(cur.at) <= b.maxAge)
	if fresh {
		return cur.price, nil
	}
	if b.fallback != nil {
		p, err := b.fallback.Quote(ctx, sym)
		if err == nil && p.IsPositive() {
			b.mu.Lock()
			b.prices[sym] = entry{price: p, at: b.now()}
			b.mu.Unlock()
			return p, nil
		}
		if err != nil {
			b.l.Warn("quote fallback failed", applogger.String("symbol", sym), applogger.Error(err))
		}
	}
	if ok {
		// A stale streamed price beats nothing.
		return cur.price, nil
	}
	return decimal.Zero, fmt.Errorf("%s: %w", sym, models.ErrPriceUnavailable)
}

// Snapshot returns a copy of all known prices.
func (b *PriceBook) Snapshot() map[string]decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(b.prices))
	for k, v := range b.prices {
		out[k] = v.price
	}
	return out
}
