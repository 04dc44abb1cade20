package sentiment

import (
	"context"
	"errors"
	"testing"

	"PaperDesk/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedAnalyzer struct {
	name string
	p    models.Polarity
	err  error
}

func (f fixedAnalyzer) Name() string { return f.name }

func (f fixedAnalyzer) Analyze(context.Context, string) (models.Polarity, error) {
	return f.p, f.err
}

func TestEnsemble_ConfidenceWeightedMean(t *testing.T) {
	r := NewRegistry(
		fixedAnalyzer{name: "a", p: models.Polarity{Score: 0.8, Confidence: 1.0}},
		fixedAnalyzer{name: "b", p: models.Polarity{Score: -0.4, Confidence: 0.5}},
	)

	p, err := r.Ensemble(context.Background(), "anything")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, p.Score, 1e-9)
	assert.InDelta(t, 0.75, p.Confidence, 1e-9)
}

func TestEnsemble_SkipsFailingAnalyzer(t *testing.T) {
	r := NewRegistry(
		fixedAnalyzer{name: "down", err: errors.New("timeout")},
		fixedAnalyzer{name: "up", p: models.Polarity{Score: -0.3, Confidence: 0.6}},
	)

	p, err := r.Ensemble(context.Background(), "anything")
	require.NoError(t, err)
	assert.InDelta(t, -0.3, p.Score, 1e-9)
	assert.InDelta(t, 0.6, p.Confidence, 1e-9)
}

func TestEnsemble_AllFailing(t *testing.T) {
	r := NewRegistry(fixedAnalyzer{name: "down", err: errors.New("timeout")})
	_, err := r.Ensemble(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNoAnalyzers)

	_, err = NewRegistry().Ensemble(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNoAnalyzers)
}

func TestRegister_IgnoresDuplicateNames(t *testing.T) {
	r := NewDefaultRegistry()
	r.Register(NewLexiconAnalyzer())
	r.Register(nil)
	assert.Equal(t, []string{"finance_lexicon", "valence"}, r.Names())
}

func TestDefaultAnalyzers_Direction(t *testing.T) {
	ctx := context.Background()
	r := NewDefaultRegistry()

	up, err := r.Ensemble(ctx, "Apple beats estimates as profits surge to a record, a great quarter")
	require.NoError(t, err)
	assert.Greater(t, up.Score, models.ClassificationBand)
	assert.LessOrEqual(t, up.Score, 1.0)

	down, err := r.Ensemble(ctx, "Shares plunge after the company missed guidance amid fraud probe and layoffs")
	require.NoError(t, err)
	assert.Less(t, down.Score, -models.ClassificationBand)
	assert.GreaterOrEqual(t, down.Score, -1.0)

	for _, p := range []models.Polarity{up, down} {
		assert.Greater(t, p.Confidence, 0.0)
		assert.LessOrEqual(t, p.Confidence, 1.0)
	}
}

func TestValence_Negation(t *testing.T) {
	a := NewValenceAnalyzer()
	plain, err := a.Analyze(context.Background(), "the results were good")
	require.NoError(t, err)
	negated, err := a.Analyze(context.Background(), "the results were not good")
	require.NoError(t, err)

	assert.Greater(t, plain.Score, 0.0)
	assert.Less(t, negated.Score, 0.0)
}

func TestMentionsAny(t *testing.T) {
	assert.True(t, MentionsAny("Apple shares rose on Monday", DefaultKeywords))
	assert.True(t, MentionsAny("Analysts lift the PRICE TARGET for Tesla", []string{"price target"}))
	assert.False(t, MentionsAny("A sunny afternoon in Cupertino", DefaultKeywords))
	assert.False(t, MentionsAny("stockholders met", []string{"stock"}))
	assert.True(t, ContainsWord("Why AAPL, not MSFT?", "msft"))
}
