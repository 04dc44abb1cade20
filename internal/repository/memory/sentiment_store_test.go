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

func TestSentimentStore_AsOfAndHistory(t *testing.T) {
	ctx := context.Background()
	s := NewSentimentStore()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of order.
	for i, offset := range []int{2, 0, 1} {
		require.NoError(t, s.Insert(ctx, &models.SentimentRecord{
			ID:           string(rune('a' + i)),
			Symbol:       "AAPL",
			OverallScore: float64(offset) / 10,
			CreatedAt:    base.Add(time.Duration(offset) * time.Hour),
		}))
	}

	latest, err := s.Latest(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 0.2, latest.OverallScore)

	r, err := s.AsOf(ctx, "AAPL", base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0.1, r.OverallScore)

	_, err = s.AsOf(ctx, "AAPL", base.Add(-time.Second))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	hist, err := s.History(ctx, "AAPL", base, base.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 0.1, hist[0].OverallScore)
	assert.Equal(t, 0.0, hist[1].OverallScore)

	hist, err = s.History(ctx, "AAPL", time.Time{}, time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)

	_, err = s.Latest(ctx, "MSFT")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
