package main

import (
	"testing"

	"PaperDesk/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummary(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Portfolio.Symbols = []string{"AAPL", "XOM"}
	cfg.Redis.Enabled = true

	out := summary(cfg)
	assert.Contains(t, out, "cash=100000.00 symbols=AAPL,XOM")
	assert.Contains(t, out, "backend    memory")
	assert.Contains(t, out, "redis      on (queue off)")
	assert.Contains(t, out, "learning   scheduled=true at 00:30")
}
