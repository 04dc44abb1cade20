package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PaperDesk/internal/domain/models"
	"PaperDesk/internal/domain/repository"

	"github.com/jackc/pgx/v5"
)

// LearningStore implements repository.LearningStore using PostgreSQL.
type LearningStore struct {
	pool *Pool
}

func NewLearningStore(pool *Pool) *LearningStore {
	return &LearningStore{pool: pool}
}

var _ repository.LearningStore = (*LearningStore)(nil)

// BeginRun inserts a fresh row for the run. Stale RUNNING rows on the same
// range are failed first so the partial unique index lets the insert through.
func (s *LearningStore) BeginRun(ctx context.Context, run *models.LearningRun, staleBefore time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if !staleBefore.IsZero() {
		_, err := tx.Exec(ctx, `
			UPDATE learning_runs
			SET status = $4, error = 'abandoned', finished_at = $5
			WHERE range_start = $1 AND range_end = $2 AND status = $3 AND started_at < $6`,
			run.RangeStart, run.RangeEnd, string(models.RunRunning), string(models.RunFailed),
			time.Now().UTC(), staleBefore,
		)
		if err != nil {
			return fmt.Errorf("reclaim stale learning run: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO learning_runs (id, range_start, range_end, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.RangeStart, run.RangeEnd, string(run.Status), run.StartedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("begin learning run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *LearningStore) LastCompletedEnd(ctx context.Context) (time.Time, error) {
	var end *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(range_end) FROM learning_runs WHERE status = $1`, string(models.RunCompleted),
	).Scan(&end)
	if err != nil {
		return time.Time{}, fmt.Errorf("last completed learning run: %w", err)
	}
	if end == nil {
		return time.Time{}, nil
	}
	return end.UTC(), nil
}

func (s *LearningStore) CompleteRun(ctx context.Context, run *models.LearningRun, patterns []models.Pattern,
	adjustments []models.ParameterAdjustment, outcomes []models.AdjustmentOutcome) error {
	insights, err := json.Marshal(nonNilInsights(run.Insights))
	if err != nil {
		return fmt.Errorf("encode insights: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE learning_runs
		SET status = $2, finished_at = $3, trades_analyzed = $4, patterns_published = $5,
			adjustments_applied = $6, outcomes_recorded = $7, insights = $8
		WHERE id = $1 AND status = $9`,
		run.ID, string(run.Status), run.FinishedAt, run.TradesAnalyzed, run.PatternsPublished,
		run.AdjustmentsApplied, run.OutcomesRecorded, insights, string(models.RunRunning),
	)
	if err != nil {
		return fmt.Errorf("complete learning run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		found, err := exists(ctx, tx, `SELECT 1 FROM learning_runs WHERE id = $1`, run.ID)
		if err != nil {
			return fmt.Errorf("check learning run: %w", err)
		}
		if found {
			return repository.ErrStateConflict
		}
		return repository.ErrNotFound
	}

	for _, p := range patterns {
		_, err := tx.Exec(ctx, `
			INSERT INTO patterns (id, run_id, pattern_type, scope, success_rate, average_pl, occurrence_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, p.RunID, string(p.PatternType), p.Scope, p.SuccessRate, p.AveragePL, p.OccurrenceCount, p.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert pattern %s: %w", p.ID, err)
		}
	}
	for _, a := range adjustments {
		_, err := tx.Exec(ctx, `
			INSERT INTO parameter_adjustments (id, run_id, parameter_name, scope, old_value, new_value, reason, confidence, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			a.ID, a.RunID, a.ParameterName, a.Scope, a.OldValue, a.NewValue, a.Reason, a.Confidence, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert adjustment %s: %w", a.ID, err)
		}
	}
	for _, o := range outcomes {
		_, err := tx.Exec(ctx, `
			INSERT INTO adjustment_outcomes (id, adjustment_id, run_id, evaluated_at, win_rate_before, win_rate_after, trades_before, trades_after, verdict)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			o.ID, o.AdjustmentID, o.RunID, o.EvaluatedAt, o.WinRateBefore, o.WinRateAfter, o.TradesBefore, o.TradesAfter, string(o.Verdict),
		)
		if err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *LearningStore) FailRun(ctx context.Context, runID, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE learning_runs SET status = $2, error = $3, finished_at = $4 WHERE id = $1`,
		runID, string(models.RunFailed), reason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("fail learning run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *LearningStore) ListRuns(ctx context.Context, limit int) ([]models.LearningRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, range_start, range_end, status, started_at, finished_at, trades_analyzed,
			patterns_published, adjustments_applied, outcomes_recorded, insights, error
		FROM learning_runs
		ORDER BY started_at DESC
		LIMIT NULLIF($1, 0)`, limit)
	if err != nil {
		return nil, fmt.Errorf("list learning runs: %w", err)
	}
	defer rows.Close()

	out := make([]models.LearningRun, 0)
	for rows.Next() {
		var (
			r        models.LearningRun
			status   string
			insights []byte
		)
		if err := rows.Scan(
			&r.ID, &r.RangeStart, &r.RangeEnd, &status, &r.StartedAt, &r.FinishedAt, &r.TradesAnalyzed,
			&r.PatternsPublished, &r.AdjustmentsApplied, &r.OutcomesRecorded, &insights, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("scan learning run row: %w", err)
		}
		r.Status = models.RunStatus(status)
		if err := json.Unmarshal(insights, &r.Insights); err != nil {
			return nil, fmt.Errorf("decode insights: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate learning run rows: %w", err)
	}
	return out, nil
}

func (s *LearningStore) ListPatterns(ctx context.Context, f models.PatternFilter) ([]models.Pattern, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, pattern_type, scope, success_rate, average_pl, occurrence_count, created_at
		FROM patterns
		WHERE ($1::text = '' OR pattern_type = $1)
		  AND ($2::text = '' OR scope = $2)
		  AND ($3::text = '' OR run_id = $3)
		  AND occurrence_count >= $4
		ORDER BY created_at DESC, id ASC
		LIMIT NULLIF($5, 0)`,
		string(f.Type), f.Scope, f.RunID, f.MinOccurrences, f.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	out := make([]models.Pattern, 0)
	for rows.Next() {
		var (
			p   models.Pattern
			typ string
		)
		if err := rows.Scan(&p.ID, &p.RunID, &typ, &p.Scope, &p.SuccessRate, &p.AveragePL, &p.OccurrenceCount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pattern row: %w", err)
		}
		p.PatternType = models.PatternType(typ)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pattern rows: %w", err)
	}
	return out, nil
}

func (s *LearningStore) ListAdjustments(ctx context.Context, from, to time.Time) ([]models.ParameterAdjustment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, parameter_name, scope, old_value, new_value, reason, confidence, created_at
		FROM parameter_adjustments
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at ASC, seq ASC`,
		nullTime(from), nullTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	defer rows.Close()

	out := make([]models.ParameterAdjustment, 0)
	index := make(map[string]int)
	for rows.Next() {
		var a models.ParameterAdjustment
		if err := rows.Scan(&a.ID, &a.RunID, &a.ParameterName, &a.Scope, &a.OldValue, &a.NewValue, &a.Reason, &a.Confidence, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan adjustment row: %w", err)
		}
		index[a.ID] = len(out)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate adjustment rows: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(out))
	for _, a := range out {
		ids = append(ids, a.ID)
	}
	outcomes, err := s.outcomesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range outcomes {
		if i, ok := index[o.AdjustmentID]; ok {
			out[i].Outcomes = append(out[i].Outcomes, o)
		}
	}
	return out, nil
}

func (s *LearningStore) outcomesFor(ctx context.Context, adjustmentIDs []string) ([]models.AdjustmentOutcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, adjustment_id, run_id, evaluated_at, win_rate_before, win_rate_after, trades_before, trades_after, verdict
		FROM adjustment_outcomes
		WHERE adjustment_id = ANY($1)
		ORDER BY evaluated_at ASC`, adjustmentIDs)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AdjustmentOutcome, error) {
		var (
			o       models.AdjustmentOutcome
			verdict string
		)
		err := row.Scan(&o.ID, &o.AdjustmentID, &o.RunID, &o.EvaluatedAt, &o.WinRateBefore, &o.WinRateAfter, &o.TradesBefore, &o.TradesAfter, &verdict)
		o.Verdict = models.Verdict(verdict)
		return o, err
	})
}

func nonNilInsights(in []models.Insight) []models.Insight {
	if in == nil {
		return []models.Insight{}
	}
	return in
}
