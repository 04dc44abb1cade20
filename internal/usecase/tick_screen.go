package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	domrepo "PaperDesk/internal/domain/repository"
	pkgkafka "PaperDesk/pkg/kafka"
	applogger "PaperDesk/pkg/logger"

	"github.com/segmentio/kafka-go"
)

var (
	errUnknownSymbol = errors.New("symbol outside the portfolio universe")
	errStaleTick     = errors.New("tick older than the price max age")
)

// TickScreen drops ticks the price book would never use before they are
// decoded: symbols outside the universe and ticks older than maxAge. It reads
// only the message key and the ts_ms header set by the tick publisher;
// messages without them go through to the handler.
type TickScreen struct {
	universe map[string]struct{}
	maxAge   time.Duration
	metrics  domrepo.Metrics
	logger   *applogger.Logger
	now      func() time.Time
}

func NewTickScreen(symbols []string, maxAge time.Duration, metrics domrepo.Metrics, lgr *applogger.Logger) *TickScreen {
	universe := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		universe[strings.ToUpper(s)] = struct{}{}
	}
	if lgr == nil {
		lgr = applogger.NewNop()
	}
	return &TickScreen{universe: universe, maxAge: maxAge, metrics: metrics, logger: lgr, now: time.Now}
}

var _ pkgkafka.ConsumerHook = (*TickScreen)(nil)

func (s *TickScreen) BeforeHandle(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, []byte, error) {
	if sym := strings.ToUpper(string(km.Key)); sym != "" && len(s.universe) > 0 {
		if _, ok := s.universe[sym]; !ok {
			return ctx, data, &pkgkafka.HookError{Code: "ERR_UNKNOWN_SYMBOL", Err: errUnknownSymbol}
		}
	}
	if s.maxAge > 0 {
		if ms, err := strconv.ParseInt(pkgkafka.HeaderValue(km, "ts_ms"), 10, 64); err == nil {
			if s.now().Sub(time.UnixMilli(ms)) > s.maxAge {
				return ctx, data, &pkgkafka.HookError{Code: "ERR_STALE", Err: errStaleTick}
			}
		}
	}
	return ctx, data, nil
}

func (s *TickScreen) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (s *TickScreen) OnError(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
	var he *pkgkafka.HookError
	if errors.As(err, &he) {
		s.metrics.RecordError("tick_screen_" + strings.ToLower(strings.TrimPrefix(he.Code, "ERR_")))
		s.logger.Debug("tick screened out",
			applogger.String("topic", topic),
			applogger.String("symbol", string(km.Key)),
			applogger.String("reason", he.Code))
		return
	}
	s.logger.Warn("tick handling failed",
		applogger.String("topic", topic),
		applogger.String("symbol", string(km.Key)),
		applogger.Error(err))
}
