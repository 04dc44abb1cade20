package memory

import (
	"context"
	"sync"

	"PaperDesk/internal/domain/models"
	"PaperDesk/internal/domain/repository"
)

// SignalStore is an in-memory implementation of repository.SignalStore.
type SignalStore struct {
	mu   sync.RWMutex
	data map[string]*models.Signal
}

func NewSignalStore() *SignalStore {
	return &SignalStore{data: make(map[string]*models.Signal)}
}

var _ repository.SignalStore = (*SignalStore)(nil)

func (s *SignalStore) Insert(_ context.Context, sig *models.Signal) error {
	if sig == nil || sig.ID == "" {
		return repository.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[sig.ID]; exists {
		return repository.ErrDuplicateKey
	}
	cp := *sig
	s.data[sig.ID] = &cp
	return nil
}

func (s *SignalStore) Get(_ context.Context, id string) (*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.data[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sig
	return &cp, nil
}

func (s *SignalStore) MarkRejected(_ context.Context, id string, reason models.RejectReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.data[id]
	if !ok || sig.Status != models.SignalPending {
		return repository.ErrNotFound
	}
	sig.Status = models.SignalRejected
	sig.RejectReason = reason
	return nil
}

// accept flips a pending signal to ACCEPTED and leaves it untouched otherwise.
func (s *SignalStore) accept(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.data[id]
	if !ok {
		return repository.ErrNotFound
	}
	if sig.Status != models.SignalPending {
		return repository.ErrStateConflict
	}
	sig.Status = models.SignalAccepted
	return nil
}
