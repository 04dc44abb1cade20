package usecase

import (
	"context"

	"PaperDesk/internal/domain/models"
	drepo "PaperDesk/internal/domain/repository"
	mid "PaperDesk/internal/middleware"
	applogger "PaperDesk/pkg/logger"
)

// PriceCollector reads the live market stream into the tick pipeline.
type PriceCollector struct {
	stream  drepo.MarketStream
	proc    *TickProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
	log     *applogger.Logger
}

func NewPriceCollector(stream drepo.MarketStream, proc *TickProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline, l *applogger.Logger) *PriceCollector {
	if l == nil {
		l = applogger.NewNop()
	}
	return &PriceCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe, log: l}
}

func (c *PriceCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *PriceCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	go c.proc.Run(ctx)
	tickCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tickCh, errCh)
	return nil
}

func (c *PriceCollector) consume(ctx context.Context, tickCh <-chan models.Tick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err == nil {
				continue
			}
			c.metrics.RecordError("stream")
			c.log.Warn("market stream error, reconnecting", applogger.Error(err))
			if rerr := c.stream.Reconnect(ctx); rerr != nil {
				c.log.Error("market stream reconnect failed", applogger.Error(rerr))
			}
		case t, ok := <-tickCh:
			if !ok {
				return
			}
			var err error
			if c.pipe != nil {
				err = c.pipe.Process(ctx, &t)
			} else {
				err = c.proc.Process(ctx, &t)
			}
			if err != nil {
				c.log.Debug("tick dropped", applogger.String("symbol", t.Symbol), applogger.Error(err))
			}
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *PriceCollector) Shutdown(_ context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
