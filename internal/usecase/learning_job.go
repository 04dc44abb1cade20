package usecase

import (
	"context"
	"encoding/json"
	"time"

	applogger "PaperDesk/pkg/logger"
	"PaperDesk/pkg/queue"
)

const LearningJobType = "learning.run"

// LearningJobPayload selects the range to learn from; empty fields mean the default range.
type LearningJobPayload struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// LearningJob runs a learning cycle for each queued learning.run message.
type LearningJob struct {
	loop *LearningLoop
	log  *applogger.Logger
}

func NewLearningJob(loop *LearningLoop, l *applogger.Logger) *LearningJob {
	if l == nil {
		l = applogger.NewNop()
	}
	return &LearningJob{loop: loop, log: l}
}

var _ queue.Job = (*LearningJob)(nil)

func (j *LearningJob) Name() string { return "learning_cycle" }
func (j *LearningJob) Type() string { return LearningJobType }

func (j *LearningJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[LearningJobPayload](payload)
	if err != nil {
		return err
	}
	res, err := j.loop.Run(ctx, p.From, p.To)
	if err != nil {
		return err
	}
	if res.Skipped {
		j.log.Info("queued learning run skipped", applogger.String("reason", res.SkipReason))
	}
	return nil
}
