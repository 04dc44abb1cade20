package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"PaperDesk/internal/domain/models"
	domrepo "PaperDesk/internal/domain/repository"

	"golang.org/x/time/rate"
)

// ErrPriceJump marks a tick whose price moved further from the last accepted
// price than the pipeline allows. A second tick near the new level confirms
// the move and is accepted.
var ErrPriceJump = errors.New("price jump beyond limit")

// Proc is the downstream the pipeline feeds.
type Proc interface {
	Process(ctx context.Context, t *models.Tick) error
}

// RealtimePipeline sits between the market stream and the tick processor.
// Per symbol it rejects malformed ticks and unconfirmed bad prints, and
// throttles to maxRPS keeping the newest throttled tick for a later flush.
// Ticks the downstream refused are retried from a bounded buffer.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	maxRPS  int
	maxJump float64
	retry   chan *models.Tick

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	last     map[string]float64
	suspect  map[string]float64
	held     map[string]*models.Tick

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the ticks per second forwarded per symbol. Zero disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize bounds the retry buffer used while downstream fails.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.retry = make(chan *models.Tick, n)
		}
	}
}

// WithMaxJump sets the largest accepted move from the last price as a
// fraction (0.2 is 20%). Zero disables the check.
func WithMaxJump(f float64) PipelineOption {
	return func(p *RealtimePipeline) {
		if f >= 0 {
			p.maxJump = f
		}
	}
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20,
		retry:    make(chan *models.Tick, 1000),
		limiters: make(map[string]*rate.Limiter),
		last:     make(map[string]float64),
		suspect:  make(map[string]float64),
		held:     make(map[string]*models.Tick),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs the retry and held-tick flush loops until ctx ends or Stop.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.wg.Add(2)
	go p.retryLoop(ctx)
	go p.flushLoop(ctx)
}

func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		p.wg.Wait()
	}
}

// Process validates, screens and forwards t. A throttled tick returns nil;
// a downstream failure buffers the tick and is reported to the caller.
func (p *RealtimePipeline) Process(ctx context.Context, t *models.Tick) error {
	start := time.Now()
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	p.mu.Lock()
	if err := p.screenLocked(t); err != nil {
		p.mu.Unlock()
		p.metrics.RecordError("pipeline_jump")
		return err
	}
	if !p.allowLocked(t.Symbol, start) {
		cp := *t
		p.held[t.Symbol] = &cp
		p.mu.Unlock()
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	delete(p.held, t.Symbol)
	p.mu.Unlock()

	if err := p.forward(ctx, t); err != nil {
		return err
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// Buffered reports the ticks waiting for retry.
func (p *RealtimePipeline) Buffered() int { return len(p.retry) }

// Held reports the symbols with a throttled tick waiting for a flush.
func (p *RealtimePipeline) Held() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.held)
}

func (p *RealtimePipeline) forward(ctx context.Context, t *models.Tick) error {
	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.retry <- t:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	return nil
}

// screenLocked accepts t when it is within maxJump of the last accepted
// price, or of a previous rejected price (the move is then confirmed).
func (p *RealtimePipeline) screenLocked(t *models.Tick) error {
	if p.maxJump > 0 {
		if last, ok := p.last[t.Symbol]; ok && !within(t.Price, last, p.maxJump) {
			if s, ok := p.suspect[t.Symbol]; !ok || !within(t.Price, s, p.maxJump) {
				p.suspect[t.Symbol] = t.Price
				return fmt.Errorf("%s %.4f vs %.4f: %w", t.Symbol, t.Price, last, ErrPriceJump)
			}
		}
	}
	delete(p.suspect, t.Symbol)
	p.last[t.Symbol] = t.Price
	return nil
}

func within(price, ref, frac float64) bool {
	return math.Abs(price-ref) <= ref*frac
}

func (p *RealtimePipeline) allowLocked(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	lim, ok := p.limiters[symbol]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(p.maxRPS), 1)
		p.limiters[symbol] = lim
	}
	return lim.AllowN(now, 1)
}

func (p *RealtimePipeline) retryLoop(ctx context.Context) {
	defer p.wg.Done()
	backoff := 50 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.retry:
			if err := p.proc.Process(ctx, t); err == nil {
				backoff = 50 * time.Millisecond
				continue
			}
			p.metrics.RecordError("pipeline_flush")
			backoff = min(backoff*2, 2*time.Second)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			select {
			case p.retry <- t:
			default:
				p.metrics.RecordError("pipeline_buffer_drop")
			}
		}
	}
}

// flushLoop forwards held ticks once their symbol's limiter has room again.
func (p *RealtimePipeline) flushLoop(ctx context.Context) {
	defer p.wg.Done()
	every := time.Second
	if p.maxRPS > 0 {
		every = time.Second / time.Duration(p.maxRPS)
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			var due []*models.Tick
			p.mu.Lock()
			for sym, t := range p.held {
				if p.allowLocked(sym, now) {
					due = append(due, t)
					delete(p.held, sym)
				}
			}
			p.mu.Unlock()
			for _, t := range due {
				_ = p.forward(ctx, t)
			}
		}
	}
}

func validateTick(t *models.Tick) error {
	switch {
	case t == nil:
		return fmt.Errorf("tick nil")
	case t.Symbol == "":
		return fmt.Errorf("symbol empty")
	case t.Timestamp.IsZero():
		return fmt.Errorf("timestamp invalid")
	case t.Price <= 0 || t.Volume < 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0):
		return fmt.Errorf("invalid price/volume")
	}
	return nil
}
