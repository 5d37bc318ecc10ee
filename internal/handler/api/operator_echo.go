package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	domrepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	"github.com/trickingegg/golden-dragon/internal/services/strategy"
	"github.com/trickingegg/golden-dragon/internal/usecase"
	xhttp "github.com/trickingegg/golden-dragon/pkg/http"
	xlogger "github.com/trickingegg/golden-dragon/pkg/logger"
)

// Operator is the control surface the HTTP API exposes. *usecase.Supervisor implements it.
type Operator interface {
	Stats() models.TrackerStats
	ResetStats()
	Strategies() []strategy.StrategyStatus
	SetStrategyEnabled(name string, enabled bool) error
	RecentSignals(instrumentID string, limit int) []models.Signal
	Instruments() []usecase.InstrumentStatus
	Bars(instrumentID string, n int) ([]models.Bar, error)
}

// HealthCheck reports a dependency as unhealthy by returning an error.
type HealthCheck func(ctx context.Context) error

// OperatorEchoHandler serves statistics, strategy toggles and market views.
type OperatorEchoHandler struct {
	logger *xlogger.Logger
	op     Operator
	store  domrepo.CandleStore
	checks map[string]HealthCheck
}

// NewOperatorEchoHandler builds the handler. store may be nil, which disables /api/history.
func NewOperatorEchoHandler(logger *xlogger.Logger, op Operator, store domrepo.CandleStore, checks map[string]HealthCheck) *OperatorEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &OperatorEchoHandler{logger: logger, op: op, store: store, checks: checks}
}

func (h *OperatorEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/stats", h.Stats)
	g.POST("/stats/reset", h.ResetStats)
	g.GET("/strategies", h.Strategies)
	g.PUT("/strategies/:name", h.ToggleStrategy)
	g.GET("/signals", h.Signals)
	g.GET("/instruments", h.Instruments)
	g.GET("/bars", h.Bars)
	g.GET("/history", h.History)
}

type statsView struct {
	models.TrackerStats
	SuccessRate float64 `json:"success_rate"`
}

type barView struct {
	End    time.Time       `json:"end"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

func (h *OperatorEchoHandler) Stats(c echo.Context) error {
	st := h.op.Stats()
	return xhttp.SuccessResponse(c, statsView{TrackerStats: st, SuccessRate: st.SuccessRate()})
}

func (h *OperatorEchoHandler) ResetStats(c echo.Context) error {
	h.op.ResetStats()
	st := h.op.Stats()
	return xhttp.SuccessResponse(c, statsView{TrackerStats: st, SuccessRate: st.SuccessRate()})
}

func (h *OperatorEchoHandler) Strategies(c echo.Context) error {
	rows := h.op.Strategies()
	return xhttp.ListResponse(c, rows, len(rows))
}

func (h *OperatorEchoHandler) ToggleStrategy(c echo.Context) error {
	req := &models.StrategyToggleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.op.SetStrategyEnabled(req.Name, *req.Enabled); err != nil {
		if errors.Is(err, models.ErrUnknownStrategy) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("strategy %q is not registered", req.Name))
		}
		h.logger.Error("strategy toggle error", xlogger.String("strategy", req.Name), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	for _, st := range h.op.Strategies() {
		if st.Name == req.Name {
			return xhttp.SuccessResponse(c, st)
		}
	}
	return xhttp.SuccessResponse(c, nil)
}

func (h *OperatorEchoHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.op.RecentSignals(req.Instrument, req.Limit)
	return xhttp.ListResponse(c, rows, len(rows))
}

func (h *OperatorEchoHandler) Instruments(c echo.Context) error {
	rows := h.op.Instruments()
	return xhttp.ListResponse(c, rows, len(rows))
}

func (h *OperatorEchoHandler) Bars(c echo.Context) error {
	req := &models.BarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	bars, err := h.op.Bars(req.Instrument, req.N)
	if err != nil {
		if errors.Is(err, models.ErrUnknownInstrument) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("instrument %q is not processed", req.Instrument))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	rows := make([]barView, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, barView{End: b.EndTime, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume})
	}
	return xhttp.ListResponse(c, rows, len(rows))
}

// History reads persisted candles, oldest first.
func (h *OperatorEchoHandler) History(c echo.Context) error {
	if h.store == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableErrorf("candle storage is disabled"))
	}
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	to := time.Now().UTC()
	from := to.Add(-time.Duration(req.Days) * 24 * time.Hour)
	candles, err := h.store.Candles(c.Request().Context(), req.Instrument, from, to, domrepo.NormalizeTimeframe(req.TF))
	if err != nil {
		h.logger.Error("history query error", xlogger.String("instrument", req.Instrument), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("history query failed").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, candles, len(candles))
}

// Health answers 200 when every check passes, 503 otherwise.
func (h *OperatorEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	report := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			report[name] = err.Error()
			continue
		}
		report[name] = "ok"
	}
	return xhttp.DataResponse(c, status, report)
}
