package memory

import (
	"context"
	"testing"
	"time"

	"PaperDesk/internal/domain/models"
	"PaperDesk/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLearningStore_RangeIsClaimedOnce(t *testing.T) {
	ctx := context.Background()
	s := NewLearningStore()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 30)

	run := &models.LearningRun{ID: "r1", RangeStart: from, RangeEnd: to, Status: models.RunRunning, StartedAt: to}
	require.NoError(t, s.BeginRun(ctx, run, time.Time{}))
	assert.ErrorIs(t, s.BeginRun(ctx, &models.LearningRun{ID: "r2", RangeStart: from, RangeEnd: to}, time.Time{}), repository.ErrDuplicateKey)

	require.NoError(t, s.FailRun(ctx, "r1", "boom"))
	require.NoError(t, s.BeginRun(ctx, &models.LearningRun{ID: "r3", RangeStart: from, RangeEnd: to, Status: models.RunRunning, StartedAt: to.Add(time.Hour)}, time.Time{}))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r1", runs[1].ID)
	assert.Equal(t, models.RunFailed, runs[1].Status)
	assert.Equal(t, "boom", runs[1].Error)

	done := runs[0]
	done.Status = models.RunCompleted
	require.NoError(t, s.CompleteRun(ctx, &done, nil, nil, nil))
	assert.ErrorIs(t, s.BeginRun(ctx, &models.LearningRun{ID: "r4", RangeStart: from, RangeEnd: to}, to.AddDate(1, 0, 0)), repository.ErrDuplicateKey)

	end, err := s.LastCompletedEnd(ctx)
	require.NoError(t, err)
	assert.True(t, end.Equal(to))
}

func TestLearningStore_StaleRunningRunIsReclaimed(t *testing.T) {
	ctx := context.Background()
	s := NewLearningStore()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 30)
	started := to.Add(2 * time.Hour)

	require.NoError(t, s.BeginRun(ctx, &models.LearningRun{ID: "r1", RangeStart: from, RangeEnd: to, Status: models.RunRunning, StartedAt: started}, time.Time{}))
	assert.ErrorIs(t, s.BeginRun(ctx, &models.LearningRun{ID: "r2", RangeStart: from, RangeEnd: to, Status: models.RunRunning}, started), repository.ErrDuplicateKey)
	require.NoError(t, s.BeginRun(ctx, &models.LearningRun{ID: "r3", RangeStart: from, RangeEnd: to, Status: models.RunRunning, StartedAt: started.Add(2 * time.Hour)}, started.Add(time.Hour)))

	stale := models.LearningRun{ID: "r1", RangeStart: from, RangeEnd: to, Status: models.RunCompleted}
	assert.ErrorIs(t, s.CompleteRun(ctx, &stale, nil, nil, nil), repository.ErrStateConflict)

	end, err := s.LastCompletedEnd(ctx)
	require.NoError(t, err)
	assert.True(t, end.IsZero())
}

func TestLearningStore_CompleteRun(t *testing.T) {
	ctx := context.Background()
	s := NewLearningStore()
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	run := &models.LearningRun{ID: "r1", RangeStart: now.AddDate(0, 0, -30), RangeEnd: now, Status: models.RunRunning, StartedAt: now}
	require.NoError(t, s.BeginRun(ctx, run, time.Time{}))

	done := *run
	done.Status = models.RunCompleted
	patterns := []models.Pattern{
		{ID: "p1", RunID: "r1", PatternType: models.PatternSymbol, Scope: "AAPL", OccurrenceCount: 8},
		{ID: "p2", RunID: "r1", PatternType: models.PatternSector, Scope: "Technology", OccurrenceCount: 12},
	}
	adjs := []models.ParameterAdjustment{{ID: "a1", RunID: "r1", ParameterName: models.ParamBuyThreshold, Scope: "AAPL", CreatedAt: now}}
	outcomes := []models.AdjustmentOutcome{{ID: "o1", AdjustmentID: "a1", RunID: "r1", Verdict: models.VerdictImproved}}
	require.NoError(t, s.CompleteRun(ctx, &done, patterns, adjs, outcomes))
	assert.ErrorIs(t, s.CompleteRun(ctx, &done, nil, nil, nil), repository.ErrStateConflict)

	got, err := s.ListPatterns(ctx, models.PatternFilter{Type: models.PatternSector})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p2", got[0].ID)

	got, err = s.ListPatterns(ctx, models.PatternFilter{MinOccurrences: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)

	list, err := s.ListAdjustments(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Outcomes, 1)
	assert.Equal(t, models.VerdictImproved, list[0].Outcomes[0].Verdict)

	list, err = s.ListAdjustments(ctx, now.Add(time.Hour), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
