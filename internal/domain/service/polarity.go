package service

import (
	"context"

	"PaperDesk/internal/domain/models"
)

// PolarityAnalyzer scores a piece of text. Implementations are registered
// in order and combined by confidence-weighted averaging.
type PolarityAnalyzer interface {
	Name() string
	Analyze(ctx context.Context, text string) (models.Polarity, error)
}

// PolarityEnsemble combines every registered analyzer into one opinion per text.
type PolarityEnsemble interface {
	Ensemble(ctx context.Context, text string) (models.Polarity, error)
}
