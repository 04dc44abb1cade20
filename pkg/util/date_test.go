package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.UTC().Format(time.RFC3339))
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())
}

func TestParseTimeDateOnly(t *testing.T) {
	got, ok := ParseTime("2024-03-01")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
	assert.True(t, ParseTimeDefault("garbage", def).Equal(def))
}

func TestStartOfDayUTC(t *testing.T) {
	in := time.Date(2024, 5, 6, 23, 59, 0, 0, time.FixedZone("X", -3*3600))
	assert.Equal(t, time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC), StartOfDayUTC(in))
}

func TestNextDailyRun(t *testing.T) {
	now := time.Date(2024, 5, 6, 0, 10, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 6, 0, 30, 0, 0, time.UTC), NextDailyRun(now, 0, 30))

	now = time.Date(2024, 5, 6, 0, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 7, 0, 30, 0, 0, time.UTC), NextDailyRun(now, 0, 30))
}

func TestUnixMaybeMillis(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, want, UnixMaybeMillis(want.Unix()))
	assert.Equal(t, want, UnixMaybeMillis(want.UnixMilli()))
}
