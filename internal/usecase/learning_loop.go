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
	"PaperDesk/pkg/util"

	"github.com/google/uuid"
)

// ParameterWriter folds new adjustments into the live snapshot.
type ParameterWriter interface {
	ParameterSource
	Apply(adjs []models.ParameterAdjustment) error
	Reload(ctx context.Context) error
}

// learningLockTTL bounds one cycle. A RUNNING row older than this was left by a
// crashed worker and its range may be reclaimed.
const learningLockTTL = time.Hour

// LearningLoop mines closed trades for patterns and nudges the tunable
// thresholds. Each range is processed at most once.
type LearningLoop struct {
	portfolioID string
	ledger      domrepo.Ledger
	sentiments  domrepo.SentimentStore
	store       domrepo.LearningStore
	params      ParameterWriter
	locker      domrepo.Locker
	publisher   domrepo.EventPublisher
	metrics     domrepo.Metrics
	log         *applogger.Logger
	cfg         LearningSettings
	now         func() time.Time

	running sync.Mutex
}

func NewLearningLoop(
	portfolioID string,
	ledger domrepo.Ledger,
	sentiments domrepo.SentimentStore,
	store domrepo.LearningStore,
	params ParameterWriter,
	locker domrepo.Locker,
	publisher domrepo.EventPublisher,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg LearningSettings,
) *LearningLoop {
	if l == nil {
		l = applogger.NewNop()
	}
	return &LearningLoop{
		portfolioID: portfolioID,
		ledger:      ledger,
		sentiments:  sentiments,
		store:       store,
		params:      params,
		locker:      locker,
		publisher:   publisher,
		metrics:     metrics,
		log:         l.With(applogger.String("component", "learning_loop")),
		cfg:         cfg.withDefaults(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// DefaultRange is [end-lookback, end) with end at today's midnight UTC.
func (l *LearningLoop) DefaultRange() (time.Time, time.Time) {
	end := util.StartOfDayUTC(l.now())
	return end.Add(-l.cfg.Lookback), end
}

func skipped(reason string) *models.LearningResult {
	return &models.LearningResult{
		Skipped:     true,
		SkipReason:  reason,
		Patterns:    []models.Pattern{},
		Adjustments: []models.ParameterAdjustment{},
		Outcomes:    []models.AdjustmentOutcome{},
		Insights:    []models.Insight{},
	}
}

// Run executes one learning cycle over [from, to). Zero bounds select the
// default range. A range that was already processed, or a cycle already in
// progress, yields a skipped result rather than an error.
func (l *LearningLoop) Run(ctx context.Context, from, to time.Time) (*models.LearningResult, error) {
	if from.IsZero() || to.IsZero() {
		from, to = l.DefaultRange()
	}
	from, to = from.UTC(), to.UTC()
	if !from.Before(to) {
		return nil, models.ValidationError("range", "from must be before to")
	}

	if !l.running.TryLock() {
		return skipped(models.ErrLearningConflict.Message), nil
	}
	defer l.running.Unlock()

	if l.locker != nil {
		key := cache.GenerateKey("lock", "learning", l.portfolioID)
		ok, err := l.locker.TryLock(ctx, key, learningLockTTL)
		if err != nil {
			return nil, fmt.Errorf("learning lock: %w", err)
		}
		if !ok {
			return skipped(models.ErrLearningConflict.Message), nil
		}
		defer func() {
			if err := l.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
				l.log.Warn("learning unlock failed", applogger.Error(err))
			}
		}()
	}

	start := time.Now()
	run := &models.LearningRun{
		ID:         uuid.NewString(),
		RangeStart: from,
		RangeEnd:   to,
		Status:     models.RunRunning,
		StartedAt:  l.now(),
	}
	if err := l.store.BeginRun(ctx, run, run.StartedAt.Add(-learningLockTTL)); err != nil {
		if errors.Is(err, domrepo.ErrDuplicateKey) {
			l.log.Info("learning range already processed",
				applogger.Time("from", from), applogger.Time("to", to))
			l.metrics.RecordLearningRun("skipped", 0, 0)
			return skipped("range already processed"), nil
		}
		return nil, fmt.Errorf("begin learning run: %w", err)
	}

	res, err := l.cycle(ctx, run)
	if err != nil {
		l.metrics.RecordLearningRun(string(models.RunFailed), 0, 0)
		l.metrics.RecordError("learning_run")
		if ferr := l.store.FailRun(context.WithoutCancel(ctx), run.ID, err.Error()); ferr != nil {
			l.log.Error("mark learning run failed", applogger.String("run_id", run.ID), applogger.Error(ferr))
		}
		return nil, err
	}

	l.metrics.RecordLearningRun(string(models.RunCompleted), len(res.Patterns), len(res.Adjustments))
	l.metrics.RecordLatency("learning_run_seconds", time.Since(start).Seconds())
	l.log.Info("learning run completed",
		applogger.String("run_id", run.ID),
		applogger.Int("trades", run.TradesAnalyzed),
		applogger.Int("patterns", len(res.Patterns)),
		applogger.Int("adjustments", len(res.Adjustments)),
		applogger.Int("outcomes", len(res.Outcomes)))
	return res, nil
}

func (l *LearningLoop) cycle(ctx context.Context, run *models.LearningRun) (*models.LearningResult, error) {
	trades, err := l.ledger.ListClosed(ctx, l.portfolioID, run.RangeStart, run.RangeEnd)
	if err != nil {
		return nil, fmt.Errorf("list closed trades: %w", err)
	}
	now := l.now()
	params := l.params.Snapshot()

	patterns := MinePatterns(trades, l.cfg.MinOccurrences, run.ID, now)
	insights := ExtractInsights(trades, l.entryConfidence(ctx), l.cfg)

	fresh, err := l.hasUnseenTrades(ctx, trades)
	if err != nil {
		return nil, err
	}
	adjustments := []models.ParameterAdjustment{}
	if fresh {
		adjustments = ProposeAdjustments(patterns, trades, params, l.cfg, run.ID, now)
	} else if len(trades) > 0 {
		l.log.Info("no trades closed since last completed run, adjustments withheld",
			applogger.String("run_id", run.ID), applogger.Int("trades", len(trades)))
	}
	// Fold on a copy first so a bad adjustment fails the run before anything is committed.
	next := params
	for _, adj := range adjustments {
		if next, err = next.Apply(adj); err != nil {
			return nil, fmt.Errorf("apply adjustment %s: %w", adj.ID, err)
		}
	}

	outcomes, err := l.evaluateOutcomes(ctx, run.ID, now)
	if err != nil {
		return nil, err
	}

	finished := l.now()
	run.Status = models.RunCompleted
	run.FinishedAt = &finished
	run.TradesAnalyzed = len(trades)
	run.PatternsPublished = len(patterns)
	run.AdjustmentsApplied = len(adjustments)
	run.OutcomesRecorded = len(outcomes)
	run.Insights = insights
	if err := l.store.CompleteRun(ctx, run, patterns, adjustments, outcomes); err != nil {
		return nil, fmt.Errorf("complete learning run: %w", err)
	}

	// The run is committed from here on. A failed fold is repaired from history.
	if err := l.params.Apply(adjustments); err != nil {
		l.metrics.RecordError("parameter_apply")
		l.log.Error("apply adjustments failed, reloading parameters",
			applogger.String("run_id", run.ID), applogger.Error(err))
		if rerr := l.params.Reload(context.WithoutCancel(ctx)); rerr != nil {
			l.log.Error("reload parameters", applogger.Error(rerr))
		}
	}
	for i := range adjustments {
		adj := adjustments[i]
		l.log.Info("parameter adjusted",
			applogger.String("parameter", adj.ParameterName),
			applogger.String("scope", adj.Scope),
			applogger.Float64("old", adj.OldValue),
			applogger.Float64("new", adj.NewValue),
			applogger.String("reason", adj.Reason))
		publish(ctx, l.publisher, l.metrics, l.log, models.Event{
			Type:        models.EventParametersAdjusted,
			PortfolioID: l.portfolioID,
			Key:         models.ScopeKey(adj.ParameterName, adj.Scope),
			Payload:     adj,
			OccurredAt:  adj.CreatedAt,
		})
	}

	if patterns == nil {
		patterns = []models.Pattern{}
	}
	if insights == nil {
		insights = []models.Insight{}
	}
	return &models.LearningResult{
		Run:         run,
		Patterns:    patterns,
		Adjustments: adjustments,
		Outcomes:    outcomes,
		Insights:    insights,
	}, nil
}

// hasUnseenTrades reports whether any trade closed at or after the end of the
// latest completed run. Trades an earlier run already learned from must not
// move the thresholds a second time.
func (l *LearningLoop) hasUnseenTrades(ctx context.Context, trades []*models.Trade) (bool, error) {
	seen, err := l.store.LastCompletedEnd(ctx)
	if err != nil {
		return false, fmt.Errorf("last completed run: %w", err)
	}
	for _, t := range trades {
		if t.CloseTime != nil && !t.CloseTime.Before(seen) {
			return true, nil
		}
	}
	return false, nil
}

// entryConfidence resolves the sentiment confidence a trade was opened on,
// falling back to the confidence stored on the trade.
func (l *LearningLoop) entryConfidence(ctx context.Context) func(*models.Trade) float64 {
	return func(t *models.Trade) float64 {
		if l.sentiments != nil {
			rec, err := l.sentiments.AsOf(ctx, t.Symbol, t.EntryTime)
			if err == nil && rec != nil {
				return rec.Confidence
			}
		}
		return t.SignalConfidence
	}
}

// evaluateOutcomes scores earlier adjustments that are old enough and still
// have no recorded outcome.
func (l *LearningLoop) evaluateOutcomes(ctx context.Context, runID string, now time.Time) ([]models.AdjustmentOutcome, error) {
	history, err := l.store.ListAdjustments(ctx, time.Time{}, now.Add(-l.cfg.OutcomeMinAge))
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	var pending []models.ParameterAdjustment
	for _, adj := range history {
		if len(adj.Outcomes) == 0 {
			pending = append(pending, adj)
		}
	}
	out := []models.AdjustmentOutcome{}
	if len(pending) == 0 {
		return out, nil
	}

	trades, err := l.ledger.ListClosed(ctx, l.portfolioID, time.Time{}, now)
	if err != nil {
		return nil, fmt.Errorf("list closed trades: %w", err)
	}
	for _, adj := range pending {
		out = append(out, EvaluateOutcome(adj, trades, l.cfg, runID, now))
	}
	return out, nil
}

func (l *LearningLoop) Runs(ctx context.Context, limit int) ([]models.LearningRun, error) {
	return l.store.ListRuns(ctx, limit)
}

func (l *LearningLoop) Patterns(ctx context.Context, f models.PatternFilter) ([]models.Pattern, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, models.ValidationError("type", "must be symbol, sector or risk_tier")
	}
	return l.store.ListPatterns(ctx, f)
}

func (l *LearningLoop) Adjustments(ctx context.Context, from, to time.Time) ([]models.ParameterAdjustment, error) {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, models.ValidationError("range", "from must be before to")
	}
	return l.store.ListAdjustments(ctx, from, to)
}
