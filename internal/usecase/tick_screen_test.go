package usecase

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	pkgkafka "PaperDesk/pkg/kafka"
	"PaperDesk/pkg/metrics"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickScreen_BeforeHandle(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	s := NewTickScreen([]string{"aapl", "XOM"}, time.Minute, metrics.Nop{}, nil)
	s.now = func() time.Time { return now }

	msg := func(key string, ts time.Time) kafka.Message {
		km := kafka.Message{Key: []byte(key), Value: []byte(`{}`)}
		if !ts.IsZero() {
			km.Headers = []kafka.Header{{Key: "ts_ms", Value: []byte(strconv.FormatInt(ts.UnixMilli(), 10))}}
		}
		return km
	}

	tests := []struct {
		name string
		km   kafka.Message
		code string
	}{
		{"fresh tick in universe", msg("AAPL", now.Add(-10*time.Second)), ""},
		{"no key or header", msg("", time.Time{}), ""},
		{"unknown symbol", msg("TSLA", now), "ERR_UNKNOWN_SYMBOL"},
		{"stale tick", msg("XOM", now.Add(-2*time.Minute)), "ERR_STALE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, data, err := s.BeforeHandle(context.Background(), "ticks", tt.km, tt.km.Value)
			assert.Equal(t, tt.km.Value, data)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			var he *pkgkafka.HookError
			require.True(t, errors.As(err, &he))
			assert.Equal(t, tt.code, he.Code)
		})
	}
}

func TestTickScreen_EmptyUniverseAllowsAll(t *testing.T) {
	s := NewTickScreen(nil, 0, metrics.Nop{}, nil)
	_, _, err := s.BeforeHandle(context.Background(), "ticks", kafka.Message{Key: []byte("ANY")}, nil)
	assert.NoError(t, err)

	s.OnError(context.Background(), "ticks", kafka.Message{Key: []byte("ANY")}, nil, errors.New("boom"))
}
