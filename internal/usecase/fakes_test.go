package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"PaperDesk/internal/domain/models"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func defaultParams() models.Parameters {
	return models.Parameters{
		BuyThreshold:        0.2,
		SellThreshold:       0.2,
		ConfidenceThreshold: 0.6,
		SentimentWeight:     0.5,
		MaxPositionSize:     0.05,
		MaxSectorAllocation: 0.3,
		MaxPositions:        20,
		SignalExpiry:        24 * time.Hour,
	}
}

type staticParams struct{ p models.Parameters }

func (s staticParams) Snapshot() models.Parameters { return s.p }

type stubNews struct {
	articles []models.Article
	err      error
	calls    atomic.Int32
}

func (s *stubNews) CompanyNews(context.Context, string, time.Time, time.Time) ([]models.Article, error) {
	s.calls.Add(1)
	return s.articles, s.err
}

type ensembleFunc func(text string) (models.Polarity, error)

func (f ensembleFunc) Ensemble(_ context.Context, text string) (models.Polarity, error) {
	return f(text)
}

func constEnsemble(score, conf float64) ensembleFunc {
	return func(string) (models.Polarity, error) {
		return models.Polarity{Score: score, Confidence: conf}, nil
	}
}

type stubSentiment struct {
	rec *models.SentimentRecord
	err error
}

func (s stubSentiment) Analyze(_ context.Context, symbol string) (*models.SentimentRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	r := *s.rec
	r.Symbol = symbol
	return &r, nil
}

type stubPrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func newStubPrices(kv ...any) *stubPrices {
	p := &stubPrices{prices: map[string]decimal.Decimal{}}
	for i := 0; i+1 < len(kv); i += 2 {
		p.prices[kv[i].(string)] = decimal.RequireFromString(kv[i+1].(string))
	}
	return p
}

func (s *stubPrices) LatestPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, models.ErrPriceUnavailable
	}
	return p, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// busyLocker refuses every lock.
type busyLocker struct{ attempts atomic.Int32 }

func (l *busyLocker) TryLock(context.Context, string, time.Duration) (bool, error) {
	l.attempts.Add(1)
	return false, nil
}

func (l *busyLocker) Unlock(context.Context, string) error { return nil }
