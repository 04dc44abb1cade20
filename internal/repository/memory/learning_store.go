package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"PaperDesk/internal/domain/models"
	"PaperDesk/internal/domain/repository"
)

// LearningStore is an in-memory implementation of repository.LearningStore.
type LearningStore struct {
	mu          sync.RWMutex
	runs        map[string]*models.LearningRun
	byRange     map[string]string // range key -> run id
	patterns    []models.Pattern
	adjustments []models.ParameterAdjustment
	outcomes    []models.AdjustmentOutcome
}

func NewLearningStore() *LearningStore {
	return &LearningStore{
		runs:    make(map[string]*models.LearningRun),
		byRange: make(map[string]string),
	}
}

var _ repository.LearningStore = (*LearningStore)(nil)

func rangeKey(from, to time.Time) string {
	return from.UTC().Format(time.RFC3339) + "/" + to.UTC().Format(time.RFC3339)
}

func (s *LearningStore) BeginRun(_ context.Context, run *models.LearningRun, staleBefore time.Time) error {
	if run == nil || run.ID == "" {
		return repository.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rangeKey(run.RangeStart, run.RangeEnd)
	if prev := s.runs[s.byRange[key]]; prev != nil {
		switch {
		case prev.Status == models.RunCompleted:
			return repository.ErrDuplicateKey
		case prev.Status == models.RunRunning:
			if staleBefore.IsZero() || !prev.StartedAt.Before(staleBefore) {
				return repository.ErrDuplicateKey
			}
			now := time.Now().UTC()
			prev.Status = models.RunFailed
			prev.Error = "abandoned"
			prev.FinishedAt = &now
		}
	}
	cp := *run
	s.runs[run.ID] = &cp
	s.byRange[key] = run.ID
	return nil
}

func (s *LearningStore) LastCompletedEnd(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var end time.Time
	for _, r := range s.runs {
		if r.Status == models.RunCompleted && r.RangeEnd.After(end) {
			end = r.RangeEnd
		}
	}
	return end, nil
}

func (s *LearningStore) CompleteRun(_ context.Context, run *models.LearningRun, patterns []models.Pattern,
	adjustments []models.ParameterAdjustment, outcomes []models.AdjustmentOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.runs[run.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != models.RunRunning {
		return repository.ErrStateConflict
	}
	cp := *run
	cp.Insights = append([]models.Insight(nil), run.Insights...)
	s.runs[run.ID] = &cp
	s.patterns = append(s.patterns, patterns...)
	for _, a := range adjustments {
		a.Outcomes = nil
		s.adjustments = append(s.adjustments, a)
	}
	s.outcomes = append(s.outcomes, outcomes...)
	return nil
}

func (s *LearningStore) FailRun(_ context.Context, runID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.runs[runID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	cur.Status = models.RunFailed
	cur.Error = reason
	cur.FinishedAt = &now
	return nil
}

// ListRuns returns runs newest first.
func (s *LearningStore) ListRuns(_ context.Context, limit int) ([]models.LearningRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LearningRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListPatterns returns matching patterns newest first.
func (s *LearningStore) ListPatterns(_ context.Context, f models.PatternFilter) ([]models.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Pattern, 0)
	for i := len(s.patterns) - 1; i >= 0; i-- {
		p := s.patterns[i]
		if f.Type != "" && p.PatternType != f.Type {
			continue
		}
		if f.Scope != "" && p.Scope != f.Scope {
			continue
		}
		if f.RunID != "" && p.RunID != f.RunID {
			continue
		}
		if p.OccurrenceCount < f.MinOccurrences {
			continue
		}
		out = append(out, p)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *LearningStore) ListAdjustments(_ context.Context, from, to time.Time) ([]models.ParameterAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byAdj := make(map[string][]models.AdjustmentOutcome)
	for _, o := range s.outcomes {
		byAdj[o.AdjustmentID] = append(byAdj[o.AdjustmentID], o)
	}

	out := make([]models.ParameterAdjustment, 0)
	for _, a := range s.adjustments {
		if !from.IsZero() && a.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !a.CreatedAt.Before(to) {
			continue
		}
		a.Outcomes = append([]models.AdjustmentOutcome(nil), byAdj[a.ID]...)
		out = append(out, a)
	}
	return out, nil
}
