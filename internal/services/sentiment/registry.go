package sentiment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"PaperDesk/internal/domain/models"
	domsvc "PaperDesk/internal/domain/service"
)

var ErrNoAnalyzers = errors.New("sentiment: no analyzer produced a score")

// Registry holds polarity analyzers in registration order.
type Registry struct {
	mu        sync.RWMutex
	analyzers []domsvc.PolarityAnalyzer
}

// NewRegistry registers the given analyzers in order.
func NewRegistry(analyzers ...domsvc.PolarityAnalyzer) *Registry {
	r := &Registry{}
	for _, a := range analyzers {
		r.Register(a)
	}
	return r
}

// NewDefaultRegistry returns the built-in lexicon and valence analyzers.
func NewDefaultRegistry() *Registry {
	return NewRegistry(NewLexiconAnalyzer(), NewValenceAnalyzer())
}

// Register appends an analyzer. Nil analyzers and duplicate names are ignored.
func (r *Registry) Register(a domsvc.PolarityAnalyzer) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.analyzers {
		if existing.Name() == a.Name() {
			return
		}
	}
	r.analyzers = append(r.analyzers, a)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.analyzers))
	for i, a := range r.analyzers {
		names[i] = a.Name()
	}
	return names
}

// Ensemble is the confidence-weighted mean of every analyzer that succeeded.
// Its confidence is the mean analyzer confidence.
func (r *Registry) Ensemble(ctx context.Context, text string) (models.Polarity, error) {
	r.mu.RLock()
	analyzers := append([]domsvc.PolarityAnalyzer(nil), r.analyzers...)
	r.mu.RUnlock()

	var (
		weighted, weights, confSum float64
		n                          int
		errs                       []error
	)
	for _, a := range analyzers {
		p, err := a.Analyze(ctx, text)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
			continue
		}
		weighted += p.Score * p.Confidence
		weights += p.Confidence
		confSum += p.Confidence
		n++
	}
	if n == 0 {
		if len(errs) > 0 {
			return models.Polarity{}, errors.Join(append([]error{ErrNoAnalyzers}, errs...)...)
		}
		return models.Polarity{}, ErrNoAnalyzers
	}

	score := 0.0
	if weights > 0 {
		score = clamp(weighted/weights, -1, 1)
	}
	return models.Polarity{Score: score, Confidence: clamp(confSum/float64(n), 0, 1)}, nil
}
