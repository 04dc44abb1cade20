package usecase

import (
	"context"
	"time"

	"PaperDesk/internal/domain/models"
	domrepo "PaperDesk/internal/domain/repository"
	applogger "PaperDesk/pkg/logger"
)

// SentimentSource yields the current sentiment for a symbol.
type SentimentSource interface {
	Analyze(ctx context.Context, symbol string) (*models.SentimentRecord, error)
}

// ParameterSource yields the parameter snapshot for one decision.
type ParameterSource interface {
	Snapshot() models.Parameters
}

// SectorResolver maps a symbol to its sector.
type SectorResolver func(symbol string) string

// publish fans out a lifecycle event. Failures are logged and counted only.
func publish(ctx context.Context, pub domrepo.EventPublisher, metrics domrepo.Metrics, l *applogger.Logger, e models.Event) {
	if pub == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if err := pub.Publish(ctx, e); err != nil {
		metrics.RecordError("event_publish")
		l.Warn("event publish failed",
			applogger.String("type", e.Type),
			applogger.String("key", e.Key),
			applogger.Error(err))
	}
}
