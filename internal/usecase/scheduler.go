package usecase

import (
	"context"
	"time"

	applogger "PaperDesk/pkg/logger"
	"PaperDesk/pkg/util"
)

// Enqueuer hands a message to the job queue.
type Enqueuer interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// LearningScheduler triggers the learning loop once a day at a fixed UTC time.
// With a queue the run is enqueued for whichever worker picks it up; without
// one the cycle runs in-process.
type LearningScheduler struct {
	loop   *LearningLoop
	queue  Enqueuer
	hour   int
	minute int
	log    *applogger.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

func NewLearningScheduler(loop *LearningLoop, q Enqueuer, hour, minute int, l *applogger.Logger) *LearningScheduler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &LearningScheduler{
		loop:   loop,
		queue:  q,
		hour:   hour,
		minute: minute,
		log:    l.With(applogger.String("component", "learning_scheduler")),
		now:    func() time.Time { return time.Now().UTC() },
		after:  time.After,
	}
}

// Run blocks until ctx is done.
func (s *LearningScheduler) Run(ctx context.Context) {
	for {
		next := util.NextDailyRun(s.now(), s.hour, s.minute)
		s.log.Debug("next learning run", applogger.Time("at", next))
		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(s.now())):
			s.Trigger(ctx)
		}
	}
}

// Trigger starts one run over the default range.
func (s *LearningScheduler) Trigger(ctx context.Context) {
	from, to := s.loop.DefaultRange()
	if s.queue != nil {
		err := s.queue.PublishMessage(ctx, LearningJobType, LearningJobPayload{From: from, To: to})
		if err == nil {
			s.log.Info("learning run enqueued", applogger.Time("from", from), applogger.Time("to", to))
			return
		}
		s.log.Warn("enqueue learning run failed, running inline", applogger.Error(err))
	}
	if _, err := s.loop.Run(ctx, from, to); err != nil {
		s.log.Error("learning run failed", applogger.Error(err))
	}
}
