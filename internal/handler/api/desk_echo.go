package api

import (
	"net/http"
	"time"

	"PaperDesk/internal/domain/models"
	domrepo "PaperDesk/internal/domain/repository"
	"PaperDesk/internal/usecase"
	xhttp "PaperDesk/pkg/http"
	xlogger "PaperDesk/pkg/logger"
	"PaperDesk/pkg/util"

	"github.com/labstack/echo/v4"
)

var _ xhttp.Handler = (*DeskEchoHandler)(nil)

// DeskEchoHandler exposes the Desk over HTTP.
type DeskEchoHandler struct {
	logger  *xlogger.Logger
	desk    *usecase.Desk
	metrics domrepo.Metrics
	mw      []echo.MiddlewareFunc
}

func NewDeskEchoHandler(logger *xlogger.Logger, desk *usecase.Desk, metrics domrepo.Metrics) *DeskEchoHandler {
	return &DeskEchoHandler{logger: logger, desk: desk, metrics: metrics}
}

// Use adds middleware applied to every /api route.
func (h *DeskEchoHandler) Use(mw ...echo.MiddlewareFunc) *DeskEchoHandler {
	h.mw = append(h.mw, mw...)
	return h
}

func (h *DeskEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", h.mw...)
	g.GET("/sentiment/:symbol", h.Sentiment)
	g.POST("/signals", h.GenerateSignal)
	g.POST("/trades", h.OpenTrade)
	g.GET("/trades", h.ListTrades)
	g.GET("/trades/:id", h.GetTrade)
	g.POST("/trades/:id/close", h.CloseTrade)
	g.POST("/trades/:id/cancel", h.CancelTrade)
	g.GET("/capital", h.Capital)
	g.GET("/parameters", h.Parameters)
	g.POST("/learning/run", h.RunLearning)
	g.GET("/learning/runs", h.LearningRuns)
	g.GET("/patterns", h.Patterns)
	g.GET("/adjustments", h.Adjustments)
}

func (h *DeskEchoHandler) timed(endpoint string) func() {
	start := time.Now()
	return func() { h.metrics.RecordLatency("http_"+endpoint, time.Since(start).Seconds()) }
}

// fail renders a use case error, logging anything unexpected.
func (h *DeskEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	if appErr := toAppError(err); appErr != nil {
		if appErr.Status >= http.StatusInternalServerError {
			h.logger.Warn(endpoint+" degraded", xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	h.metrics.RecordError("http_" + endpoint)
	h.logger.Error(endpoint+" usecase error", xlogger.Error(err))
	return xhttp.InternalServerErrorResponse(c)
}

func (h *DeskEchoHandler) Sentiment(c echo.Context) error {
	defer h.timed("sentiment")()
	req := &models.SentimentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rec, err := h.desk.Analyze(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, "sentiment", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, rec)
}

func (h *DeskEchoHandler) GenerateSignal(c echo.Context) error {
	defer h.timed("signals")()
	req := &models.GenerateSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.desk.GenerateSignal(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, "signals", err)
	}
	return xhttp.CreatedOrOK(c, res.Generated, res)
}

func (h *DeskEchoHandler) OpenTrade(c echo.Context) error {
	defer h.timed("open_trade")()
	req := &models.OpenTradeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	d, err := h.desk.OpenTrade(c.Request().Context(), req.SignalID)
	if err != nil {
		return h.fail(c, "open_trade", err)
	}
	return xhttp.CreatedOrOK(c, d.Allocation.Accepted, d)
}

func (h *DeskEchoHandler) ListTrades(c echo.Context) error {
	defer h.timed("list_trades")()
	req := &models.TradesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.desk.Trades(c.Request().Context(), models.TradeStatus(req.Status), req.Limit)
	if err != nil {
		return h.fail(c, "list_trades", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *DeskEchoHandler) GetTrade(c echo.Context) error {
	defer h.timed("get_trade")()
	req := &models.TradeIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	t, err := h.desk.Trade(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "get_trade", err)
	}
	return xhttp.SuccessResponse(c, t)
}

func (h *DeskEchoHandler) CloseTrade(c echo.Context) error {
	defer h.timed("close_trade")()
	req := &models.CloseTradeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	t, err := h.desk.CloseTrade(c.Request().Context(), req.ID, req.Price)
	if err != nil {
		return h.fail(c, "close_trade", err)
	}
	return xhttp.SuccessResponse(c, t)
}

func (h *DeskEchoHandler) CancelTrade(c echo.Context) error {
	defer h.timed("cancel_trade")()
	req := &models.TradeIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	t, err := h.desk.CancelTrade(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "cancel_trade", err)
	}
	return xhttp.SuccessResponse(c, t)
}

func (h *DeskEchoHandler) Capital(c echo.Context) error {
	defer h.timed("capital")()
	capital, err := h.desk.Capital(c.Request().Context())
	if err != nil {
		return h.fail(c, "capital", err)
	}
	return xhttp.SuccessResponse(c, capital)
}

func (h *DeskEchoHandler) Parameters(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.desk.Parameters())
}

func (h *DeskEchoHandler) RunLearning(c echo.Context) error {
	defer h.timed("learning_run")()
	req := &models.LearningRunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, verr := parseRange(req.From, req.To)
	if verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	res, err := h.desk.RunLearning(c.Request().Context(), from, to)
	if err != nil {
		return h.fail(c, "learning_run", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *DeskEchoHandler) LearningRuns(c echo.Context) error {
	limit := util.ParseIntDefault(c.QueryParam("limit"), 50)
	runs, err := h.desk.LearningRuns(c.Request().Context(), limit)
	if err != nil {
		return h.fail(c, "learning_runs", err)
	}
	return xhttp.ListResponse(c, runs, int64(len(runs)))
}

func (h *DeskEchoHandler) Patterns(c echo.Context) error {
	defer h.timed("patterns")()
	req := &models.PatternsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.desk.Patterns(c.Request().Context(), models.PatternFilter{
		Type:           models.PatternType(req.Type),
		Scope:          req.Scope,
		RunID:          req.RunID,
		MinOccurrences: req.MinOccurrences,
		Limit:          req.Limit,
	})
	if err != nil {
		return h.fail(c, "patterns", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *DeskEchoHandler) Adjustments(c echo.Context) error {
	defer h.timed("adjustments")()
	req := &models.AdjustmentsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, verr := parseRange(req.From, req.To)
	if verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	rows, err := h.desk.Adjustments(c.Request().Context(), from, to)
	if err != nil {
		return h.fail(c, "adjustments", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// parseRange accepts RFC3339, unix seconds or YYYY-MM-DD. Empty bounds stay zero.
func parseRange(fromS, toS string) (time.Time, time.Time, *xhttp.AppError) {
	var from, to time.Time
	if fromS != "" {
		t, ok := util.ParseTime(fromS)
		if !ok {
			return from, to, xhttp.NewAppError(http.StatusBadRequest, "ERR_INVALID_TIME", "from is not a valid time").OnField("from")
		}
		from = t
	}
	if toS != "" {
		t, ok := util.ParseTime(toS)
		if !ok {
			return from, to, xhttp.NewAppError(http.StatusBadRequest, "ERR_INVALID_TIME", "to is not a valid time").OnField("to")
		}
		to = t
	}
	return from, to, nil
}
