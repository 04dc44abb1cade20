package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runPayload struct {
	Day string `json:"day"`
}

type recordingJob struct {
	failFirst int32
	calls     atomic.Int32
	got       chan string
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "test.run" }

func (j *recordingJob) Handle(_ context.Context, payload json.RawMessage) error {
	n := j.calls.Add(1)
	if n <= j.failFirst {
		return errors.New("transient")
	}
	p, err := ParsePayload[runPayload](payload)
	if err != nil {
		return err
	}
	j.got <- p.Day
	return nil
}

func TestLocalQueue_DeliversPayload(t *testing.T) {
	job := &recordingJob{got: make(chan string, 1)}
	q := NewLocalQueue(nil, &QueueConfig{Workers: 2}, job)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.PublishMessage(context.Background(), "test.run", runPayload{Day: "2026-03-01"}))

	select {
	case day := <-job.got:
		assert.Equal(t, "2026-03-01", day)
	case <-time.After(2 * time.Second):
		t.Fatal("job not handled")
	}
}

func TestLocalQueue_RetriesUntilSuccess(t *testing.T) {
	job := &recordingJob{failFirst: 2, got: make(chan string, 1)}
	q := NewLocalQueue(nil, &QueueConfig{RetryLimit: 3, RetryDelay: time.Millisecond}, job)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.PublishMessage(context.Background(), "test.run", runPayload{Day: "d"}))
	select {
	case <-job.got:
	case <-time.After(2 * time.Second):
		t.Fatal("job not handled")
	}
	assert.Equal(t, int32(3), job.calls.Load())
}

func TestLocalQueue_RejectsUnknownType(t *testing.T) {
	q := NewLocalQueue(nil, nil)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	err := q.PublishMessage(context.Background(), "nope", nil)
	assert.Error(t, err)
}

func TestParsePayload_Empty(t *testing.T) {
	p, err := ParsePayload[runPayload](nil)
	require.NoError(t, err)
	assert.Equal(t, "", p.Day)
}
