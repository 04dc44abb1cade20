package postgres

import (
	"context"
	"testing"
	"time"

	"PaperDesk/internal/domain/models"
	"PaperDesk/internal/domain/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStores(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("sentiment as-of", func(t *testing.T) {
		s := NewSentimentStore(pool)
		for i := 0; i < 3; i++ {
			require.NoError(t, s.Insert(ctx, &models.SentimentRecord{
				ID:           "sr-" + string(rune('0'+i)),
				Symbol:       "AAPL",
				OverallScore: float64(i) / 10,
				Confidence:   0.5,
				AsOf:         now.Add(time.Duration(i) * time.Hour),
				CreatedAt:    now.Add(time.Duration(i) * time.Hour),
			}))
		}
		r, err := s.AsOf(ctx, "AAPL", now.Add(90*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 0.1, r.OverallScore)

		hist, err := s.History(ctx, "AAPL", time.Time{}, time.Time{}, 2)
		require.NoError(t, err)
		require.Len(t, hist, 2)
		assert.Equal(t, 0.2, hist[0].OverallScore)

		_, err = s.Latest(ctx, "NONE")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("ledger open and settle", func(t *testing.T) {
		signals := NewSignalStore(pool)
		ledger := NewLedger(pool)

		c := models.NewCapitalState("pg", decimal.NewFromInt(100000), now)
		require.NoError(t, ledger.InitCapital(ctx, c))
		assert.ErrorIs(t, ledger.InitCapital(ctx, c), repository.ErrDuplicateKey)

		require.NoError(t, signals.Insert(ctx, &models.Signal{
			ID: "sig-1", Symbol: "AAPL", Sector: "Technology", Action: models.ActionBuy,
			RiskTier: models.RiskMedium, TargetQuantity: 15, EstimatedPrice: decimal.RequireFromString("213.55"),
			Status: models.SignalPending, CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour),
		}))

		cur, err := ledger.GetCapital(ctx, "pg")
		require.NoError(t, err)
		tr := &models.Trade{
			ID: "tr-1", PortfolioID: "pg", SignalID: "sig-1", Symbol: "AAPL", Sector: "Technology",
			Direction: models.ActionBuy, Quantity: 15, EntryPrice: decimal.RequireFromString("213.55"),
			EntryTime: now, Status: models.TradeOpen, RiskTier: models.RiskMedium,
		}
		next := cur.Clone()
		next.ApplyOpen(tr, now)
		require.NoError(t, ledger.OpenTrade(ctx, tr, next, cur.Version))

		sig, err := signals.Get(ctx, "sig-1")
		require.NoError(t, err)
		assert.Equal(t, models.SignalAccepted, sig.Status)

		stale := cur.Clone()
		assert.ErrorIs(t, ledger.OpenTrade(ctx, &models.Trade{
			ID: "tr-2", PortfolioID: "pg", Symbol: "MSFT", Sector: "Technology", Direction: models.ActionBuy,
			Quantity: 1, EntryPrice: decimal.NewFromInt(1), EntryTime: now, Status: models.TradeOpen,
		}, stale, cur.Version), repository.ErrVersionConflict)

		closeAt := now.Add(2 * time.Hour)
		price := decimal.RequireFromString("220.50")
		pl := tr.PLAt(price)
		closed := tr.Clone()
		closed.Status = models.TradeClosed
		closed.ClosePrice = &price
		closed.CloseTime = &closeAt
		closed.RealizedPL = &pl
		closed.CloseReason = models.CloseManual
		settled := next.Clone()
		settled.ApplyClose(tr, pl, closeAt)
		require.NoError(t, ledger.SettleTrade(ctx, closed, settled, next.Version))
		assert.ErrorIs(t, ledger.SettleTrade(ctx, closed, settled.Clone(), settled.Version), repository.ErrStateConflict)

		got, err := ledger.GetTrade(ctx, "tr-1")
		require.NoError(t, err)
		require.NotNil(t, got.RealizedPL)
		assert.True(t, got.RealizedPL.Equal(decimal.RequireFromString("104.25")))

		capNow, err := ledger.GetCapital(ctx, "pg")
		require.NoError(t, err)
		assert.True(t, capNow.CashAvailable.Equal(decimal.RequireFromString("100104.25")))
		assert.Equal(t, int64(3), capNow.Version)
		assert.Empty(t, capNow.SymbolExposure)

		list, err := ledger.ListClosed(ctx, "pg", now, now.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("learning runs", func(t *testing.T) {
		s := NewLearningStore(pool)
		from, to := now.AddDate(0, 0, -30), now
		run := &models.LearningRun{ID: "run-1", RangeStart: from, RangeEnd: to, Status: models.RunRunning, StartedAt: now}
		require.NoError(t, s.BeginRun(ctx, run, time.Time{}))
		assert.ErrorIs(t, s.BeginRun(ctx, &models.LearningRun{ID: "run-2", RangeStart: from, RangeEnd: to, Status: models.RunRunning, StartedAt: now}, now.Add(-time.Hour)), repository.ErrDuplicateKey)

		finished := now.Add(time.Minute)
		run.Status = models.RunCompleted
		run.FinishedAt = &finished
		run.Insights = []models.Insight{{Kind: "confidence_band", Statement: "x", Confidence: 0.5}}
		require.NoError(t, s.CompleteRun(ctx, run,
			[]models.Pattern{{ID: "pat-1", RunID: "run-1", PatternType: models.PatternSymbol, Scope: "AAPL", SuccessRate: 0.3, AveragePL: decimal.NewFromInt(-5), OccurrenceCount: 6, CreatedAt: now}},
			[]models.ParameterAdjustment{{ID: "adj-1", RunID: "run-1", ParameterName: models.ParamBuyThreshold, Scope: "AAPL", OldValue: 0.2, NewValue: 0.25, CreatedAt: now}},
			nil,
		))

		patterns, err := s.ListPatterns(ctx, models.PatternFilter{Type: models.PatternSymbol, MinOccurrences: 5})
		require.NoError(t, err)
		require.Len(t, patterns, 1)
		assert.True(t, patterns[0].AveragePL.Equal(decimal.NewFromInt(-5)))

		adjs, err := s.ListAdjustments(ctx, time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Len(t, adjs, 1)
		assert.Equal(t, 0.25, adjs[0].NewValue)

		runs, err := s.ListRuns(ctx, 5)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, models.RunCompleted, runs[0].Status)
		assert.Len(t, runs[0].Insights, 1)

		end, err := s.LastCompletedEnd(ctx)
		require.NoError(t, err)
		assert.True(t, end.Equal(to))
		assert.ErrorIs(t, s.BeginRun(ctx, &models.LearningRun{ID: "run-3", RangeStart: from, RangeEnd: to, Status: models.RunRunning, StartedAt: now}, now.Add(time.Hour)), repository.ErrDuplicateKey)
	})

	t.Run("learning run retry keeps history", func(t *testing.T) {
		s := NewLearningStore(pool)
		from, to := now.AddDate(0, -2, 0), now.AddDate(0, -1, 0)

		require.NoError(t, s.BeginRun(ctx, &models.LearningRun{ID: "retry-1", RangeStart: from, RangeEnd: to, Status: models.RunRunning, StartedAt: now}, time.Time{}))
		require.NoError(t, s.FailRun(ctx, "retry-1", "boom"))
		require.NoError(t, s.BeginRun(ctx, &models.LearningRun{ID: "retry-2", RangeStart: from, RangeEnd: to, Status: models.RunRunning, StartedAt: now}, time.Time{}))

		// retry-2 crashed; a later worker reclaims the range once it is stale.
		assert.ErrorIs(t, s.BeginRun(ctx, &models.LearningRun{ID: "retry-3", RangeStart: from, RangeEnd: to, Status: models.RunRunning, StartedAt: now.Add(30 * time.Minute)}, now.Add(-30*time.Minute)), repository.ErrDuplicateKey)
		require.NoError(t, s.BeginRun(ctx, &models.LearningRun{ID: "retry-4", RangeStart: from, RangeEnd: to, Status: models.RunRunning, StartedAt: now.Add(2 * time.Hour)}, now.Add(time.Hour)))

		finished := now.Add(3 * time.Hour)
		stale := &models.LearningRun{ID: "retry-2", RangeStart: from, RangeEnd: to, Status: models.RunCompleted, FinishedAt: &finished}
		assert.ErrorIs(t, s.CompleteRun(ctx, stale, nil, nil, nil), repository.ErrStateConflict)

		status := map[string]models.RunStatus{}
		runs, err := s.ListRuns(ctx, 0)
		require.NoError(t, err)
		for _, r := range runs {
			status[r.ID] = r.Status
		}
		assert.Equal(t, models.RunFailed, status["retry-1"])
		assert.Equal(t, models.RunFailed, status["retry-2"])
		assert.Equal(t, models.RunRunning, status["retry-4"])
		assert.NotContains(t, status, "retry-3")
	})
}
