package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"PaperDesk/internal/domain/models"
	domrepo "PaperDesk/internal/domain/repository"
)

// ParameterBook serves the current Parameters snapshot: the configured base
// with every recorded adjustment replayed in creation order.
type ParameterBook struct {
	base    models.Parameters
	history domrepo.LearningStore
	current atomic.Pointer[models.Parameters]
	mu      sync.Mutex // serializes writers
}

func NewParameterBook(base models.Parameters, history domrepo.LearningStore) *ParameterBook {
	b := &ParameterBook{base: base, history: history}
	p := base
	b.current.Store(&p)
	return b
}

// Snapshot returns the parameters a single decision should use. The Overrides
// map is shared and must be treated as read-only.
func (b *ParameterBook) Snapshot() models.Parameters {
	return *b.current.Load()
}

// Reload rebuilds the snapshot from the full adjustment history.
func (b *ParameterBook) Reload(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	adjs, err := b.history.ListAdjustments(ctx, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("load adjustments: %w", err)
	}
	p := b.base
	for _, adj := range adjs {
		if p, err = p.Apply(adj); err != nil {
			return fmt.Errorf("replay adjustment %s: %w", adj.ID, err)
		}
	}
	b.current.Store(&p)
	return nil
}

// Apply folds freshly persisted adjustments into the live snapshot.
func (b *ParameterBook) Apply(adjs []models.ParameterAdjustment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := *b.current.Load()
	var err error
	for _, adj := range adjs {
		if p, err = p.Apply(adj); err != nil {
			return err
		}
	}
	b.current.Store(&p)
	return nil
}
