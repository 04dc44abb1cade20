package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PaperDesk/internal/domain/models"
	domrepo "PaperDesk/internal/domain/repository"
	applogger "PaperDesk/pkg/logger"
)

// PriceUpdater accepts last-trade prints.
type PriceUpdater interface {
	Update(t models.Tick)
}

// TickProcessor keeps the price book current and forwards ticks to the
// configured sinks in batches.
type TickProcessor struct {
	prices  PriceUpdater
	sinks   []domrepo.TickSink
	metrics domrepo.Metrics
	log     *applogger.Logger
	batchSz int
	batchTO time.Duration

	mu  sync.Mutex
	buf []models.Tick
}

func NewTickProcessor(
	prices PriceUpdater,
	sinks []domrepo.TickSink,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	batchSz int,
	batchTO time.Duration,
) *TickProcessor {
	if batchSz <= 0 {
		batchSz = 500
	}
	if batchTO <= 0 {
		batchTO = time.Second
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &TickProcessor{
		prices:  prices,
		sinks:   sinks,
		metrics: metrics,
		log:     l,
		batchSz: batchSz,
		batchTO: batchTO,
	}
}

// Process updates the price book and queues the tick for the sinks.
func (p *TickProcessor) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}
	p.prices.Update(*t)
	p.metrics.RecordLastPrice(t.Symbol, t.Price)
	if len(p.sinks) == 0 {
		return nil
	}

	p.mu.Lock()
	p.buf = append(p.buf, *t)
	full := len(p.buf) >= p.batchSz
	p.mu.Unlock()
	if full {
		return p.Flush(ctx)
	}
	return nil
}

// Flush hands every buffered tick to each sink. A failing sink does not stop the others.
func (p *TickProcessor) Flush(ctx context.Context) error {
	p.mu.Lock()
	batch := p.buf
	p.buf = nil
	p.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	var firstErr error
	for _, s := range p.sinks {
		if err := s.StoreBatch(ctx, batch); err != nil {
			p.metrics.RecordError("tick_sink")
			p.log.Warn("tick sink failed", applogger.Int("ticks", len(batch)), applogger.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("flush ticks: %w", err)
			}
		}
	}
	p.metrics.RecordLatency("tick_flush_seconds", time.Since(start).Seconds())
	return firstErr
}

// Run flushes on the batch timeout until ctx is done, then flushes once more.
func (p *TickProcessor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.batchTO)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.Flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			_ = p.Flush(ctx)
		}
	}
}
