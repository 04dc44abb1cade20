package di

import (
	"context"
	"fmt"
	"time"

	"PaperDesk/internal/domain/models"
	"PaperDesk/internal/domain/repository"
	"PaperDesk/internal/handler/api"
	mid "PaperDesk/internal/middleware"
	internalrepo "PaperDesk/internal/repository"
	"PaperDesk/internal/repository/memory"
	"PaperDesk/internal/repository/postgres"
	"PaperDesk/internal/service/finnhub"
	"PaperDesk/internal/service/pricebook"
	"PaperDesk/internal/service/ratelimit"
	"PaperDesk/internal/services/sentiment"
	"PaperDesk/internal/usecase"
	pkgcache "PaperDesk/pkg/cache"
	pkgch "PaperDesk/pkg/clickhouse"
	"PaperDesk/pkg/config"
	pkgkafka "PaperDesk/pkg/kafka"
	applogger "PaperDesk/pkg/logger"
	"PaperDesk/pkg/metrics"
	"PaperDesk/pkg/queue"
	"PaperDesk/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
)

// Stores groups the persistence backends selected by backend.type.
type Stores struct {
	Sentiment repository.SentimentStore
	Signals   repository.SignalStore
	Ledger    repository.Ledger
	Learning  repository.LearningStore
	pool      *postgres.Pool
}

func (s *Stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&cfg.Log)
}

// ProvideRegistry creates the Prometheus registry shared by every recorder.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideClickHouseClient connects to ClickHouse and creates the schema. Nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithAuth(cfg.ClickHouse.Database, cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns, cfg.ClickHouse.ConnMaxLifetime),
		pkgch.WithTransport(cfg.ClickHouse.UseHTTP, cfg.ClickHouse.Compress),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideStores opens the configured backend. With ClickHouse enabled the
// sentiment history lives there instead.
func ProvideStores(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (*Stores, error) {
	var s Stores
	switch cfg.Backend.Type {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Postgres.ConnectTimeout)
		defer cancel()
		pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		s = Stores{
			Sentiment: postgres.NewSentimentStore(pool),
			Signals:   postgres.NewSignalStore(pool),
			Ledger:    postgres.NewLedger(pool),
			Learning:  postgres.NewLearningStore(pool),
			pool:      pool,
		}
	default:
		signals := memory.NewSignalStore()
		s = Stores{
			Sentiment: memory.NewSentimentStore(),
			Signals:   signals,
			Ledger:    memory.NewLedger(signals),
			Learning:  memory.NewLearningStore(),
		}
	}
	if ch != nil {
		s.Sentiment = internalrepo.NewCHSentimentStore(ch, cfg.ClickHouse.Database, l)
	}
	return &s, nil
}

// ProvideRedisCache connects to Redis. Nil when disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process cache over Redis, or uses memory alone.
func ProvideCache(rc *pkgcache.RedisCache) pkgcache.Service {
	if rc == nil {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(10000))
	}
	return pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemoryTTL(30*time.Second))
}

// ProvideLocker returns the distributed lock, or nil when Redis is off and
// the in-process mutexes are the only writers.
func ProvideLocker(rc *pkgcache.RedisCache) repository.Locker {
	if rc == nil {
		return nil
	}
	return rc
}

// ProvideKafkaProducer creates a Kafka producer. Nil when disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Compression, cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger, cfg.Kafka.Producer.Async),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithKeyedPartitioning(true),
		pkgkafka.WithProducerMetrics(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher publishes lifecycle events to Kafka, or drops them.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideKafkaConsumer creates the ticks consumer with the tick screen
// installed. Nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, reg *prometheus.Registry, m repository.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerMetrics(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(usecase.NewTickScreen(cfg.Portfolio.Symbols, cfg.Trading.PriceMaxAge, m, l))
	return consumer, nil
}

// ProvideFinnhubREST creates the Finnhub REST client.
func ProvideFinnhubREST(cfg *config.Config) *finnhub.REST {
	return finnhub.NewREST(cfg.Finnhub.RESTURL, cfg.Finnhub.APIKey,
		cfg.Finnhub.RequestsPerSecond, cfg.Finnhub.Timeout, cfg.Finnhub.MaxRetries)
}

// ProvideNewsProvider serves company news from Finnhub, or nothing when it is disabled.
func ProvideNewsProvider(cfg *config.Config, rest *finnhub.REST) repository.NewsProvider {
	if !cfg.Finnhub.Enabled {
		return noNews{}
	}
	return rest
}

type noNews struct{}

func (noNews) CompanyNews(context.Context, string, time.Time, time.Time) ([]models.Article, error) {
	return nil, nil
}

// ProvidePriceBook creates the last-price cache, falling back to Finnhub quotes.
func ProvidePriceBook(cfg *config.Config, rest *finnhub.REST, l *applogger.Logger) *pricebook.PriceBook {
	opts := []pricebook.Option{
		pricebook.WithMaxAge(cfg.Trading.PriceMaxAge),
		pricebook.WithLogger(l),
	}
	if cfg.Finnhub.Enabled {
		opts = append(opts, pricebook.WithFallback(rest))
	}
	return pricebook.New(opts...)
}

func ProvidePriceProvider(pb *pricebook.PriceBook) repository.PriceProvider {
	return pb
}

// ProvideSentimentRegistry registers the built-in analyzers and the optional remote model.
func ProvideSentimentRegistry(cfg *config.Config) *sentiment.Registry {
	r := sentiment.NewDefaultRegistry()
	if cfg.Sentiment.RemoteAnalyzerURL != "" {
		r.Register(sentiment.NewRemoteAnalyzer(cfg.Sentiment.RemoteAnalyzerURL, cfg.Sentiment.ProviderTimeout, cfg.Sentiment.ProviderRetries))
	}
	return r
}

// BaseParameters converts the trading section into the initial parameter snapshot.
func BaseParameters(cfg *config.Config) models.Parameters {
	t := cfg.Trading
	return models.Parameters{
		BuyThreshold:        t.BuyThreshold,
		SellThreshold:       t.SellThreshold,
		ConfidenceThreshold: t.ConfidenceThreshold,
		SentimentWeight:     t.SentimentWeight,
		MaxPositionSize:     t.MaxPositionSize,
		MaxSectorAllocation: t.MaxSectorAllocation,
		MaxPositions:        t.MaxPositions,
		SignalExpiry:        t.SignalExpiry,
		Overrides:           map[string]float64{},
	}
}

// ProvideParameterBook replays the stored adjustment history over the configured base.
func ProvideParameterBook(cfg *config.Config, stores *Stores) (*usecase.ParameterBook, error) {
	book := usecase.NewParameterBook(BaseParameters(cfg), stores.Learning)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := book.Reload(ctx); err != nil {
		return nil, err
	}
	return book, nil
}

func ProvideSentimentAggregator(
	cfg *config.Config,
	news repository.NewsProvider,
	registry *sentiment.Registry,
	stores *Stores,
	c pkgcache.Service,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SentimentAggregator {
	return usecase.NewSentimentAggregator(news, registry, stores.Sentiment, c, m, l, usecase.SentimentSettings{
		Lookback:         cfg.Sentiment.Lookback,
		MinArticleLength: cfg.Sentiment.MinArticleLength,
		CacheTTL:         cfg.Sentiment.CacheTTL,
		Keywords:         cfg.Sentiment.Keywords,
		Concurrency:      4,
	})
}

func ProvideSignalGenerator(
	cfg *config.Config,
	agg *usecase.SentimentAggregator,
	prices repository.PriceProvider,
	stores *Stores,
	params *usecase.ParameterBook,
	pub repository.EventPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SignalGenerator {
	return usecase.NewSignalGenerator(cfg.Portfolio.ID, agg, prices, stores.Ledger, stores.Signals,
		params, cfg.SectorOf, pub, m, l)
}

// ProvideTradeManager creates the trade manager and seeds the portfolio's capital.
func ProvideTradeManager(
	cfg *config.Config,
	stores *Stores,
	prices repository.PriceProvider,
	params *usecase.ParameterBook,
	locker repository.Locker,
	pub repository.EventPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.TradeManager, error) {
	tm := usecase.NewTradeManager(cfg.Portfolio.ID, stores.Ledger, stores.Signals, prices, params, locker, pub, m, l,
		usecase.TradeSettings{StalenessWindow: cfg.Trading.StalenessWindow, LockTTL: cfg.Trading.LockTTL})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := tm.SeedCapital(ctx, decimal.NewFromFloat(cfg.Portfolio.InitialCash)); err != nil {
		return nil, err
	}
	return tm, nil
}

func ProvideLearningLoop(
	cfg *config.Config,
	stores *Stores,
	params *usecase.ParameterBook,
	locker repository.Locker,
	pub repository.EventPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.LearningLoop {
	return usecase.NewLearningLoop(cfg.Portfolio.ID, stores.Ledger, stores.Sentiment, stores.Learning, params, locker, pub, m, l,
		usecase.LearningSettings{
			Lookback:       cfg.Learning.Lookback,
			MinOccurrences: cfg.Learning.MinOccurrences,
			TargetWinRate:  cfg.Learning.TargetWinRate,
			Tolerance:      cfg.Learning.Tolerance,
			MaxStep:        cfg.Learning.MaxStep,
			OutcomeMinAge:  cfg.Learning.OutcomeMinAge,
		})
}

// ProvideJobQueue runs learning jobs on Redis when the queue is enabled, in-process otherwise.
func ProvideJobQueue(cfg *config.Config, rc *pkgcache.RedisCache, loop *usecase.LearningLoop, l *applogger.Logger) queue.QueueService {
	job := usecase.NewLearningJob(loop, l)
	qc := &queue.QueueConfig{
		Workers:    cfg.Redis.Queue.Workers,
		RetryLimit: cfg.Redis.Queue.RetryLimit,
		RetryDelay: cfg.Redis.Queue.RetryDelay,
	}
	if rc != nil && cfg.Redis.Queue.Enabled {
		q := queue.NewRedisQueue(l, qc, rc.Client(),
			queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"),
			queue.WithDedupWindow(time.Hour))
		q.RegisterJob(job)
		return q
	}
	return queue.NewLocalQueue(l, qc, job)
}

// ProvideScheduler creates the daily learning trigger. Nil when scheduling is off.
func ProvideScheduler(cfg *config.Config, loop *usecase.LearningLoop, q queue.QueueService, l *applogger.Logger) (*usecase.LearningScheduler, error) {
	if !cfg.Learning.Scheduled {
		return nil, nil
	}
	h, m, err := cfg.LearningRunAt()
	if err != nil {
		return nil, err
	}
	return usecase.NewLearningScheduler(loop, q, h, m, l), nil
}

func ProvideDesk(
	agg *usecase.SentimentAggregator,
	gen *usecase.SignalGenerator,
	tm *usecase.TradeManager,
	loop *usecase.LearningLoop,
	params *usecase.ParameterBook,
) *usecase.Desk {
	return usecase.NewDesk(agg, gen, tm, loop, params)
}

// ProvideTickSinks selects where live ticks are forwarded besides the price book.
func ProvideTickSinks(cfg *config.Config, ch *pkgch.Client, producer *pkgkafka.Producer) []repository.TickSink {
	var sinks []repository.TickSink
	if ch != nil {
		sinks = append(sinks, internalrepo.NewCHTickArchive(ch, cfg.ClickHouse.Database))
	}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaTickPublisher(producer, cfg.Kafka.TicksTopic))
	}
	return sinks
}

func ProvideTickProcessor(pb *pricebook.PriceBook, sinks []repository.TickSink, m repository.Metrics, l *applogger.Logger) *usecase.TickProcessor {
	return usecase.NewTickProcessor(pb, sinks, m, l, 500, time.Second)
}

// ProvidePriceCollector wires the Finnhub trade stream into the tick pipeline. Nil when streaming is off.
func ProvidePriceCollector(cfg *config.Config, proc *usecase.TickProcessor, m repository.Metrics, l *applogger.Logger) *usecase.PriceCollector {
	if !cfg.Finnhub.Enabled || !cfg.Finnhub.Stream {
		return nil
	}
	stream := finnhub.NewStream(cfg.Finnhub.APIKey, cfg.Finnhub.WebSocketURL, cfg.Portfolio.Symbols,
		cfg.Finnhub.ReconnectDelay, cfg.Finnhub.PingInterval, l)
	pipe := mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(cfg.Finnhub.StreamMaxRPS),
		mid.WithBufferSize(2000),
		mid.WithMaxJump(cfg.Finnhub.MaxPriceJump),
	)
	return usecase.NewPriceCollector(stream, proc, m, pipe, l)
}

// ProvideKafkaTicksHandler feeds the ticks topic into the price book.
func ProvideKafkaTicksHandler(cfg *config.Config, pb *pricebook.PriceBook, m repository.Metrics) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, pb, m)
}

// ProvideHTTPHandler creates the desk API with per-client rate limiting.
func ProvideHTTPHandler(cfg *config.Config, desk *usecase.Desk, m repository.Metrics, l *applogger.Logger) *api.DeskEchoHandler {
	limiter := ratelimit.New(cfg.Server.RateLimitBurst, cfg.Server.RateLimitPerSec)
	return api.NewDeskEchoHandler(l, desk, m).Use(limiter.Middleware())
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	reg *prometheus.Registry,
	handler *api.DeskEchoHandler,
	tm *usecase.TradeManager,
	scheduler *usecase.LearningScheduler,
	q queue.QueueService,
	collector *usecase.PriceCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	stores *Stores,
	c pkgcache.Service,
	ch *pkgch.Client,
	pub repository.EventPublisher,
) *server.App {
	return server.New(server.Deps{
		Config:    cfg,
		Logger:    l,
		Registry:  reg,
		Handler:   handler,
		Trades:    tm,
		Scheduler: scheduler,
		Queue:     q,
		Collector: collector,
		Consumer:  consumer,
		TicksSub:  kh,
		Closers: []server.Closer{
			server.CloserFunc(func() error { stores.Close(); return nil }),
			c,
			chCloser{ch},
			pub,
		},
	})
}

type chCloser struct{ c *pkgch.Client }

func (c chCloser) Close() error {
	if c.c == nil {
		return nil
	}
	return c.c.Close()
}
