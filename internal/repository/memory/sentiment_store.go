package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"PaperDesk/internal/domain/models"
	"PaperDesk/internal/domain/repository"
)

// SentimentStore is an in-memory implementation of repository.SentimentStore.
type SentimentStore struct {
	mu       sync.RWMutex
	bySymbol map[string][]*models.SentimentRecord // ordered by CreatedAt
}

func NewSentimentStore() *SentimentStore {
	return &SentimentStore{bySymbol: make(map[string][]*models.SentimentRecord)}
}

var _ repository.SentimentStore = (*SentimentStore)(nil)

func (s *SentimentStore) Insert(_ context.Context, r *models.SentimentRecord) error {
	if r == nil || r.ID == "" || r.Symbol == "" {
		return repository.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.bySymbol[r.Symbol]
	for _, existing := range rows {
		if existing.ID == r.ID {
			return repository.ErrDuplicateKey
		}
	}
	cp := *r
	// Keep rows sorted; inserts are almost always appends.
	i := sort.Search(len(rows), func(i int) bool { return rows[i].CreatedAt.After(cp.CreatedAt) })
	rows = append(rows, nil)
	copy(rows[i+1:], rows[i:])
	rows[i] = &cp
	s.bySymbol[r.Symbol] = rows
	return nil
}

func (s *SentimentStore) Latest(_ context.Context, symbol string) (*models.SentimentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.bySymbol[symbol]
	if len(rows) == 0 {
		return nil, repository.ErrNotFound
	}
	cp := *rows[len(rows)-1]
	return &cp, nil
}

func (s *SentimentStore) AsOf(_ context.Context, symbol string, t time.Time) (*models.SentimentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.bySymbol[symbol]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].CreatedAt.After(t) })
	if i == 0 {
		return nil, repository.ErrNotFound
	}
	cp := *rows[i-1]
	return &cp, nil
}

// History returns records created in [from, to], newest first.
func (s *SentimentStore) History(_ context.Context, symbol string, from, to time.Time, limit int) ([]*models.SentimentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.bySymbol[symbol]
	out := make([]*models.SentimentRecord, 0)
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		if !from.IsZero() && r.CreatedAt.Before(from) {
			break
		}
		if !to.IsZero() && r.CreatedAt.After(to) {
			continue
		}
		cp := *r
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
