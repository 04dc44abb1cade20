package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducer_Validation(t *testing.T) {
	_, err := NewProducer()
	assert.ErrorContains(t, err, "brokers")

	_, err = NewProducer(WithBrokers([]string{"k1:9092"}), WithDelivery(-1, "brotli", 0))
	assert.ErrorContains(t, err, "compression")

	_, err = NewProducer(WithBrokers([]string{"k1:9092"}), WithDelivery(2, "", 0))
	assert.ErrorContains(t, err, "acks")

	p, err := NewProducer(WithBrokers([]string{"k1:9092"}), WithDelivery(1, "zstd", 5))
	require.NoError(t, err)
	assert.Equal(t, "zstd", p.comp)
	assert.Equal(t, 5, p.writer.MaxAttempts)
}

func TestProducerOptions_ZeroKeepsDefaults(t *testing.T) {
	cfg := defaultProducerConfig()
	WithBatching(0, 0, 0, true)(cfg)
	WithDelivery(-1, "", 0)(cfg)

	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1<<20, cfg.BatchBytes)
	assert.Equal(t, 50*time.Millisecond, cfg.BatchTimeout)
	assert.True(t, cfg.Async)
	assert.Equal(t, "snappy", cfg.Compression)
	assert.Equal(t, 3, cfg.MaxAttempts)
}
