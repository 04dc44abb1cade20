package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"PaperDesk/internal/handler/api"
	"PaperDesk/internal/usecase"
	"PaperDesk/pkg/config"
	xhttp "PaperDesk/pkg/http"
	pkgkafka "PaperDesk/pkg/kafka"
	applogger "PaperDesk/pkg/logger"
	"PaperDesk/pkg/queue"

	"github.com/prometheus/client_golang/prometheus"
)

// Closer releases an infrastructure client on shutdown.
type Closer interface {
	Close() error
}

// CloserFunc adapts a function to Closer.
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }

// Deps lists everything the application runs. Optional components are nil
// when their feature is disabled.
type Deps struct {
	Config    *config.Config
	Logger    *applogger.Logger
	Registry  *prometheus.Registry
	Handler   *api.DeskEchoHandler
	Trades    *usecase.TradeManager
	Scheduler *usecase.LearningScheduler
	Queue     queue.QueueService
	Collector *usecase.PriceCollector
	Consumer  *pkgkafka.Consumer
	TicksSub  pkgkafka.MessageHandler
	Closers   []Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	d          Deps
	log        *applogger.Logger
	httpServer *xhttp.Server
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new App instance with all dependencies.
func New(d Deps) *App {
	l := d.Logger
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{d: d, log: l.With(applogger.String("component", "app"))}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start launches the background workers and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	cfg := a.d.Config
	ctx, a.cancel = context.WithCancel(ctx)

	if a.d.Queue != nil {
		if err := a.d.Queue.Start(); err != nil {
			return err
		}
	}

	if a.d.Collector != nil {
		a.goRun(func() {
			if err := a.d.Collector.Start(ctx); err != nil {
				a.log.Error("price collector error", applogger.Error(err))
			}
		})
		a.log.Info("price collector started", applogger.Strings("symbols", cfg.Portfolio.Symbols))
	}

	if a.d.Consumer != nil && a.d.TicksSub != nil {
		a.d.Consumer.RegisterHandler(a.d.TicksSub)
		if err := a.d.Consumer.Start(); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.log.Info("kafka consumer started", applogger.String("topic", a.d.TicksSub.Topic()))
		}
	}

	if a.d.Trades != nil {
		a.goRun(func() { a.d.Trades.RunSweeper(ctx, cfg.Trading.SweepInterval) })
	}

	if a.d.Scheduler != nil {
		a.goRun(func() { a.d.Scheduler.Run(ctx) })
		a.log.Info("learning scheduled", applogger.String("run_at", cfg.Learning.RunAt))
	}

	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.log),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithCORS(cfg.Server.CORSOrigins...),
	}
	if cfg.Metrics.Enabled && a.d.Registry != nil {
		opts = append(opts, xhttp.WithMetrics(a.d.Registry))
	}
	var h xhttp.Handler
	if a.d.Handler != nil {
		h = a.d.Handler
	}
	a.httpServer = xhttp.NewServer(h, opts...)
	return a.httpServer.Start()
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Shutdown stops the HTTP server first so no new work arrives, then the
// workers, then the infrastructure clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down")

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.d.Collector != nil {
		if err := a.d.Collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.d.Consumer != nil {
		if err := a.d.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.d.Queue != nil {
		if err := a.d.Queue.Stop(ctx); err != nil {
			a.log.Warn("queue stop error", applogger.Error(err))
		}
	}

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	for _, c := range a.d.Closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
