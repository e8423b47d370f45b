package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SalesPulse/internal/domain/models"
	drepo "SalesPulse/internal/domain/repository"
	dsvc "SalesPulse/internal/domain/service"
	"SalesPulse/internal/services/features"
	"SalesPulse/pkg/cache"
	applogger "SalesPulse/pkg/logger"
)

var (
	// ErrStoreUnavailable is returned when stored-series analysis is requested without a store.
	ErrStoreUnavailable = errors.New("series store not configured")
	// ErrForecastUnavailable is returned when no forecaster is wired.
	ErrForecastUnavailable = errors.New("forecaster not configured")
	// ErrInvalidRange is returned when a range ends before it starts.
	ErrInvalidRange = errors.New("invalid time range")
)

// SeriesAnalysisUseCase runs the detector over ad hoc, stored and forecast series.
type SeriesAnalysisUseCase struct {
	detector   dsvc.AnomalyDetector
	store      drepo.SeriesStore
	forecaster dsvc.Forecaster
	cache      cache.Service
	cacheTTL   time.Duration
	alerts     *AlertDispatcher
	metrics    drepo.Metrics
	log        *applogger.Logger
}

// SeriesAnalysisOption configures optional collaborators.
type SeriesAnalysisOption func(*SeriesAnalysisUseCase)

// WithSeriesStore enables stored and forecast analysis.
func WithSeriesStore(s drepo.SeriesStore) SeriesAnalysisOption {
	return func(u *SeriesAnalysisUseCase) { u.store = s }
}

// WithForecaster enables forecast analysis.
func WithForecaster(f dsvc.Forecaster) SeriesAnalysisOption {
	return func(u *SeriesAnalysisUseCase) { u.forecaster = f }
}

// WithReportCache caches stored-series reports for ttl.
func WithReportCache(c cache.Service, ttl time.Duration) SeriesAnalysisOption {
	return func(u *SeriesAnalysisUseCase) {
		u.cache = c
		u.cacheTTL = ttl
	}
}

// WithAlerts dispatches findings of stored and forecast analyses.
func WithAlerts(d *AlertDispatcher) SeriesAnalysisOption {
	return func(u *SeriesAnalysisUseCase) { u.alerts = d }
}

// NewSeriesAnalysisUseCase creates the use case.
func NewSeriesAnalysisUseCase(detector dsvc.AnomalyDetector, metrics drepo.Metrics, l *applogger.Logger, opts ...SeriesAnalysisOption) *SeriesAnalysisUseCase {
	u := &SeriesAnalysisUseCase{
		detector: detector,
		metrics:  metrics,
		log:      l,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Detector exposes the underlying detector for single-detector endpoints.
func (u *SeriesAnalysisUseCase) Detector() dsvc.AnomalyDetector { return u.detector }

// AnalyzeValues analyzes a caller-supplied series. No alerts are dispatched.
func (u *SeriesAnalysisUseCase) AnalyzeValues(ctx context.Context, values []float64, ts []time.Time) (*models.AnalysisReport, error) {
	return u.analyze("values", values, ts)
}

func (u *SeriesAnalysisUseCase) analyze(source string, values []float64, ts []time.Time) (*models.AnalysisReport, error) {
	start := time.Now()
	defer func() { u.metrics.RecordLatency("analyze_"+source, time.Since(start).Seconds()) }()

	u.metrics.RecordAnalysis(source, len(values))
	report, err := u.detector.AnalyzeSeries(values, ts)
	if err != nil {
		u.metrics.RecordError("analyze_" + source)
		return nil, err
	}
	for _, f := range report.Anomalies {
		u.metrics.RecordFinding(f.KindOrEmpty(), f.Severity)
	}
	return report, nil
}

// AnalyzeStored loads key between from and to at granularity g and analyzes it.
// Reports are cached; cached reports do not dispatch alerts again.
func (u *SeriesAnalysisUseCase) AnalyzeStored(ctx context.Context, key models.SeriesKey, from, to time.Time, g drepo.Granularity) (*models.SeriesReport, error) {
	if u.store == nil {
		return nil, ErrStoreUnavailable
	}
	from, to = features.AlignRange(from, to, g)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to %s before from %s", ErrInvalidRange, to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	end := features.NextBucket(to, g)

	// Metric and entity may contain ':', so the pair is hashed.
	cacheKey := cache.GenerateKey("report", cache.HashKey(key.String()), string(g), from.Unix(), to.Unix())
	if u.cache != nil {
		var cached models.SeriesReport
		err := u.cache.Get(ctx, cacheKey, &cached)
		if err == nil {
			cached.Cached = true
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			u.log.Warn("report cache read failed", applogger.String("key", cacheKey), applogger.Error(err))
		}
	}

	points, err := u.store.GetSeries(ctx, key, from, end, g)
	if err != nil {
		u.metrics.RecordError("store_get_series")
		return nil, fmt.Errorf("load series %s: %w", key, err)
	}
	values, ts := features.Split(points)

	report, err := u.analyze("series", values, ts)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", key, err)
	}

	out := &models.SeriesReport{
		Series:      key,
		Granularity: string(g),
		From:        from,
		To:          to,
		Points:      len(points),
		Report:      report,
	}
	if u.alerts != nil {
		out.AlertsDispatched = len(u.alerts.Dispatch(ctx, key, "series", report.Anomalies))
	}

	if u.cache != nil && u.cacheTTL > 0 {
		if err := u.cache.Set(ctx, cacheKey, out, u.cacheTTL); err != nil {
			u.log.Warn("report cache write failed", applogger.String("key", cacheKey), applogger.Error(err))
		}
	}
	return out, nil
}

// AnalyzeForecast projects the last history points of key horizon steps
// ahead with model and analyzes the projected path.
func (u *SeriesAnalysisUseCase) AnalyzeForecast(ctx context.Context, key models.SeriesKey, history int, model string, horizon int) (*models.ForecastReport, error) {
	if u.store == nil {
		return nil, ErrStoreUnavailable
	}
	if u.forecaster == nil {
		return nil, ErrForecastUnavailable
	}

	points, err := u.store.GetLatestN(ctx, key, history)
	if err != nil {
		u.metrics.RecordError("store_latest")
		return nil, fmt.Errorf("load history %s: %w", key, err)
	}
	values, ts := features.Split(points)

	start := time.Now()
	projected, err := u.forecaster.Forecast(ctx, model, values, horizon)
	u.metrics.RecordLatency("forecast", time.Since(start).Seconds())
	if err != nil {
		u.metrics.RecordError("forecast")
		return nil, fmt.Errorf("forecast %s: %w", key, err)
	}
	futureTS := features.Extrapolate(ts, len(projected))

	report, err := u.analyze("forecast", projected, futureTS)
	if err != nil {
		return nil, fmt.Errorf("analyze forecast %s: %w", key, err)
	}

	out := &models.ForecastReport{
		Series:     key,
		Model:      model,
		History:    len(values),
		Forecast:   projected,
		Timestamps: futureTS,
		Report:     report,
	}
	if u.alerts != nil {
		out.AlertsDispatched = len(u.alerts.Dispatch(ctx, key, "forecast", report.Anomalies))
	}
	return out, nil
}
