package api

import (
	"errors"
	"time"

	"SalesPulse/internal/domain/models"
	domrepo "SalesPulse/internal/domain/repository"
	"SalesPulse/internal/service/alertstream"
	svcmetrics "SalesPulse/internal/service/metrics"
	"SalesPulse/internal/services/analytics"
	"SalesPulse/internal/services/forecast"
	"SalesPulse/internal/usecase"
	xhttp "SalesPulse/pkg/http"
	xlogger "SalesPulse/pkg/logger"
	"SalesPulse/pkg/queue"

	"github.com/labstack/echo/v4"
)

// defaultLookback is the stored-series range used when from is omitted.
const defaultLookback = 90 * 24 * time.Hour

// AnomalyEchoHandler serves the /api/anomaly routes.
type AnomalyEchoHandler struct {
	logger     *xlogger.Logger
	analysis   *usecase.SeriesAnalysisUseCase
	thresholds *usecase.ThresholdService
	jobs       queue.Publisher
	hub        *alertstream.Hub
	now        func() time.Time
}

// HandlerOption configures optional collaborators.
type HandlerOption func(*AnomalyEchoHandler)

// WithJobs enables POST /jobs.
func WithJobs(p queue.Publisher) HandlerOption {
	return func(h *AnomalyEchoHandler) { h.jobs = p }
}

// WithStream enables GET /stream.
func WithStream(hub *alertstream.Hub) HandlerOption {
	return func(h *AnomalyEchoHandler) { h.hub = hub }
}

func NewAnomalyEchoHandler(logger *xlogger.Logger, analysis *usecase.SeriesAnalysisUseCase, thresholds *usecase.ThresholdService, opts ...HandlerOption) *AnomalyEchoHandler {
	svcmetrics.Register()
	h := &AnomalyEchoHandler{
		logger:     logger,
		analysis:   analysis,
		thresholds: thresholds,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *AnomalyEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/anomaly")
	g.POST("/analyze", h.Analyze)
	g.POST("/outliers/zscore", h.ZScore)
	g.POST("/outliers/iqr", h.IQR)
	g.POST("/sudden-changes", h.SuddenChanges)
	g.POST("/trend-break", h.TrendBreak)
	g.POST("/baseline", h.Baseline)
	g.GET("/thresholds", h.GetThresholds)
	g.PUT("/thresholds", h.PutThresholds)
	g.GET("/series", h.StoredSeries)
	g.POST("/forecast", h.Forecast)
	g.POST("/jobs", h.EnqueueJob)
	g.GET("/stream", h.Stream)
}

func (h *AnomalyEchoHandler) Analyze(c echo.Context) error {
	defer svcmetrics.Observe("analyze")()
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, "analyze", verr)
	}

	res, err := h.analysis.AnalyzeValues(c.Request().Context(), req.Values, req.Timestamps)
	if err != nil {
		return h.fail(c, "analyze", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnomalyEchoHandler) ZScore(c echo.Context) error {
	defer svcmetrics.Observe("zscore")()
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, "zscore", verr)
	}
	return xhttp.SuccessResponse(c, h.analysis.Detector().DetectOutliersZScore(req.Values, req.Timestamps))
}

func (h *AnomalyEchoHandler) IQR(c echo.Context) error {
	defer svcmetrics.Observe("iqr")()
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, "iqr", verr)
	}
	return xhttp.SuccessResponse(c, h.analysis.Detector().DetectOutliersIQR(req.Values, req.Timestamps))
}

func (h *AnomalyEchoHandler) SuddenChanges(c echo.Context) error {
	defer svcmetrics.Observe("sudden_changes")()
	req := &models.SuddenChangeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, "sudden_changes", verr)
	}
	return xhttp.SuccessResponse(c, h.analysis.Detector().DetectSuddenChanges(req.Values, req.Timestamps, req.WindowSize))
}

func (h *AnomalyEchoHandler) TrendBreak(c echo.Context) error {
	defer svcmetrics.Observe("trend_break")()
	req := &models.TrendBreakRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, "trend_break", verr)
	}
	return xhttp.SuccessResponse(c, h.analysis.Detector().DetectTrendBreak(req.Values, req.Timestamps, req.MinPeriods))
}

func (h *AnomalyEchoHandler) Baseline(c echo.Context) error {
	defer svcmetrics.Observe("baseline")()
	req := &models.BaselineRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, "baseline", verr)
	}
	return xhttp.SuccessResponse(c, h.analysis.Detector().CompareWithBaseline(req.CurrentValue, req.BaselineValues))
}

func (h *AnomalyEchoHandler) GetThresholds(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.thresholds.Current())
}

func (h *AnomalyEchoHandler) PutThresholds(c echo.Context) error {
	defer svcmetrics.Observe("thresholds")()
	req := &models.ThresholdsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, "thresholds", verr)
	}
	update := models.ThresholdUpdate{
		RiskThresholdPct:        req.RiskThresholdPct,
		OpportunityThresholdPct: req.OpportunityThresholdPct,
		ZThreshold:              req.ZThreshold,
	}
	if update.IsEmpty() {
		return h.fail(c, "thresholds", xhttp.BadRequestError("at least one threshold is required"))
	}
	return xhttp.SuccessResponse(c, h.thresholds.Update(c.Request().Context(), update))
}

func (h *AnomalyEchoHandler) StoredSeries(c echo.Context) error {
	defer svcmetrics.Observe("series")()
	req := &models.StoredSeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, "series", verr)
	}

	to := h.now()
	if req.To != "" {
		t, ok := xhttp.ParseTime(req.To)
		if !ok {
			return h.fail(c, "series", xhttp.BadRequestErrorf("invalid to %q", req.To))
		}
		to = t
	}
	from := to.Add(-defaultLookback)
	if req.From != "" {
		t, ok := xhttp.ParseTime(req.From)
		if !ok {
			return h.fail(c, "series", xhttp.BadRequestErrorf("invalid from %q", req.From))
		}
		from = t
	}

	key := models.SeriesKey{Metric: req.Metric, Entity: req.Entity}
	res, err := h.analysis.AnalyzeStored(c.Request().Context(), key, from, to, domrepo.NormalizeGranularity(req.Granularity))
	if err != nil {
		return h.fail(c, "series", err)
	}
	if res.Cached {
		c.Response().Header().Set("X-Cache", "HIT")
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnomalyEchoHandler) Forecast(c echo.Context) error {
	defer svcmetrics.Observe("forecast")()
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, "forecast", verr)
	}

	key := models.SeriesKey{Metric: req.Metric, Entity: req.Entity}
	res, err := h.analysis.AnalyzeForecast(c.Request().Context(), key, req.History, req.Model, req.Horizon)
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnomalyEchoHandler) EnqueueJob(c echo.Context) error {
	defer svcmetrics.Observe("jobs")()
	if h.jobs == nil {
		return h.fail(c, "jobs", queue.ErrNotRunning)
	}
	req := &models.AnalysisJobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, "jobs", verr)
	}

	id, err := usecase.EnqueueAnalysis(c.Request().Context(), h.jobs, req)
	if err != nil {
		return h.fail(c, "jobs", err)
	}
	return xhttp.AcceptedResponse(c, map[string]string{"job_id": id, "type": usecase.AnalyzeJobType})
}

func (h *AnomalyEchoHandler) Stream(c echo.Context) error {
	if h.hub == nil {
		return h.fail(c, "stream", xhttp.ServiceUnavailableError("alert stream disabled"))
	}
	if err := h.hub.ServeWS(c.Response(), c.Request()); err != nil {
		// the upgrader has already answered the client
		h.logger.Warn("alert stream upgrade failed", xlogger.Error(err))
	}
	return nil
}

func (h *AnomalyEchoHandler) invalid(c echo.Context, endpoint string, verr []xhttp.ValidationError) error {
	svcmetrics.Fail(endpoint, "ERR_VALIDATION")
	return xhttp.BadRequestResponse(c, verr)
}

func (h *AnomalyEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	svcmetrics.Fail(endpoint, appErr.Code)
	if appErr.Status >= 500 {
		h.logger.Error("anomaly api error",
			xlogger.String("endpoint", endpoint),
			xlogger.String("code", appErr.Code),
			xlogger.Error(err),
		)
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps use case errors to API errors.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	var statusErr *xhttp.StatusError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, analytics.ErrInsufficientData):
		return xhttp.InsufficientDataError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrInvalidRange):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, usecase.ErrStoreUnavailable),
		errors.Is(err, usecase.ErrForecastUnavailable),
		errors.Is(err, forecast.ErrNotConfigured),
		errors.Is(err, queue.ErrNotRunning):
		return xhttp.ServiceUnavailableError(err.Error())
	case errors.As(err, &statusErr):
		return xhttp.BadGatewayError("forecast service failed").WithError(err)
	default:
		return xhttp.InternalError("request failed").WithError(err)
	}
}
