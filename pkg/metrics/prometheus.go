package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes desk activity as Prometheus metrics.
type Recorder struct {
	sentimentScore *prometheus.GaugeVec
	sentimentConf  *prometheus.GaugeVec
	articles       *prometheus.CounterVec
	signals        *prometheus.CounterVec
	allocations    *prometheus.CounterVec
	tradesClosed   *prometheus.CounterVec
	realizedPL     *prometheus.CounterVec
	cash           *prometheus.GaugeVec
	learningRuns   *prometheus.CounterVec
	patterns       prometheus.Gauge
	adjustments    prometheus.Counter
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New registers the recorder's collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		sentimentScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "paperdesk_sentiment_score",
			Help: "Latest aggregated sentiment score per symbol",
		}, []string{"symbol"}),
		sentimentConf: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "paperdesk_sentiment_confidence",
			Help: "Latest aggregated sentiment confidence per symbol",
		}, []string{"symbol"}),
		articles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperdesk_sentiment_articles_total",
			Help: "Articles that passed filtering and were scored",
		}, []string{"symbol"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperdesk_signals_total",
			Help: "Signals generated",
		}, []string{"action", "risk_tier"}),
		allocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperdesk_allocations_total",
			Help: "Allocation decisions by outcome",
		}, []string{"outcome", "reason"}),
		tradesClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperdesk_trades_closed_total",
			Help: "Trades closed",
		}, []string{"symbol", "reason"}),
		realizedPL: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperdesk_realized_pl_abs_total",
			Help: "Absolute realized P&L split by sign",
		}, []string{"sign"}),
		cash: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "paperdesk_cash_available",
			Help: "Cash available per portfolio",
		}, []string{"portfolio"}),
		learningRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperdesk_learning_runs_total",
			Help: "Learning cycles by status",
		}, []string{"status"}),
		patterns: f.NewGauge(prometheus.GaugeOpts{
			Name: "paperdesk_learning_patterns",
			Help: "Patterns published by the last completed cycle",
		}),
		adjustments: f.NewCounter(prometheus.CounterOpts{
			Name: "paperdesk_parameter_adjustments_total",
			Help: "Parameter adjustments applied",
		}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperdesk_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "paperdesk_last_price",
			Help: "Last recorded price for a symbol",
		}, []string{"symbol"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paperdesk_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (r *Recorder) RecordSentiment(symbol string, score, confidence float64, articles int) {
	r.sentimentScore.WithLabelValues(symbol).Set(score)
	r.sentimentConf.WithLabelValues(symbol).Set(confidence)
	r.articles.WithLabelValues(symbol).Add(float64(articles))
}

func (r *Recorder) RecordSignal(action, tier string) {
	r.signals.WithLabelValues(action, tier).Inc()
}

func (r *Recorder) RecordAllocation(outcome, reason string) {
	r.allocations.WithLabelValues(outcome, reason).Inc()
}

func (r *Recorder) RecordTradeClosed(symbol, reason string, pl float64) {
	r.tradesClosed.WithLabelValues(symbol, reason).Inc()
	switch {
	case pl > 0:
		r.realizedPL.WithLabelValues("gain").Add(pl)
	case pl < 0:
		r.realizedPL.WithLabelValues("loss").Add(-pl)
	}
}

func (r *Recorder) RecordCash(portfolioID string, cash float64) {
	r.cash.WithLabelValues(portfolioID).Set(cash)
}

func (r *Recorder) RecordLearningRun(status string, patterns, adjustments int) {
	r.learningRuns.WithLabelValues(status).Inc()
	if status == "completed" {
		r.patterns.Set(float64(patterns))
		r.adjustments.Add(float64(adjustments))
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordSentiment(string, float64, float64, int) {}
func (Nop) RecordSignal(string, string)                   {}
func (Nop) RecordAllocation(string, string)               {}
func (Nop) RecordTradeClosed(string, string, float64)     {}
func (Nop) RecordCash(string, float64)                    {}
func (Nop) RecordLearningRun(string, int, int)            {}
func (Nop) RecordError(string)                            {}
func (Nop) RecordLastPrice(string, float64)               {}
func (Nop) RecordLatency(string, float64)                 {}
