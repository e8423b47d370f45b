package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SalesPulse/internal/domain/models"
	domrepo "SalesPulse/internal/domain/repository"
	"SalesPulse/internal/services/analytics"
	"SalesPulse/internal/usecase"
	xlogger "SalesPulse/pkg/logger"
	"SalesPulse/pkg/metrics"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	points []models.SeriesPoint
}

func (s *memStore) GetSeries(context.Context, models.SeriesKey, time.Time, time.Time, domrepo.Granularity) ([]models.SeriesPoint, error) {
	return s.points, nil
}

func (s *memStore) GetLatestN(context.Context, models.SeriesKey, int) ([]models.SeriesPoint, error) {
	return s.points, nil
}

func (s *memStore) Append(context.Context, *models.Observation) error { return nil }

func (s *memStore) Health(context.Context) error { return nil }

type memQueue struct{ types []string }

func (q *memQueue) Enqueue(_ context.Context, msgType string, _ interface{}) (string, error) {
	q.types = append(q.types, msgType)
	return "job-42", nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newServer(t *testing.T, store domrepo.SeriesStore, opts ...HandlerOption) *echo.Echo {
	t.Helper()
	det := analytics.NewAnomalyDetector(models.DefaultThresholds())
	var ucOpts []usecase.SeriesAnalysisOption
	if store != nil {
		ucOpts = append(ucOpts, usecase.WithSeriesStore(store))
	}
	uc := usecase.NewSeriesAnalysisUseCase(det, metrics.Nop{}, xlogger.Nop(), ucOpts...)
	th := usecase.NewThresholdService(det, nil, metrics.Nop{}, xlogger.Nop())

	e := echo.New()
	NewAnomalyEchoHandler(xlogger.Nop(), uc, th, opts...).RegisterRoutes(e)
	return e
}

func call(t *testing.T, e *echo.Echo, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

const spikeBody = `{"values":[10,11,10,12,11,10,9,11,10,500]}`

func TestAnalyze(t *testing.T) {
	e := newServer(t, nil)

	rec, env := call(t, e, http.MethodPost, "/api/anomaly/analyze", spikeBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, env.Status)

	var report models.AnalysisReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 4, report.TotalAnomalies)
	assert.True(t, report.HighAnomalyRateAlert)
	assert.Equal(t, 1, report.Summary.ByType.Outliers)
}

func TestAnalyzeInsufficientData(t *testing.T) {
	e := newServer(t, nil)

	rec, env := call(t, e, http.MethodPost, "/api/anomaly/analyze", `{"values":[1,2]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, env.Status)
	assert.Contains(t, string(env.Data), "ERR_INSUFFICIENT_DATA")
}

func TestAnalyzeValidation(t *testing.T) {
	e := newServer(t, nil)

	rec, env := call(t, e, http.MethodPost, "/api/anomaly/analyze", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_REQUIRED")
}

func TestSingleDetectors(t *testing.T) {
	e := newServer(t, nil)

	tests := []struct {
		path string
		body string
		want int
	}{
		{path: "/api/anomaly/outliers/zscore", body: spikeBody, want: 1},
		{path: "/api/anomaly/outliers/iqr", body: spikeBody, want: 1},
		{path: "/api/anomaly/sudden-changes", body: `{"values":[100,100,100,70]}`, want: 1},
		{path: "/api/anomaly/sudden-changes", body: `{"values":[100,100,100,70],"window_size":3}`, want: 1},
		{path: "/api/anomaly/trend-break", body: `{"values":[1,1,1,1,1,1,1,1,1,1]}`, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec, env := call(t, e, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var findings []models.AnomalyFinding
			require.NoError(t, json.Unmarshal(env.Data, &findings))
			assert.Len(t, findings, tt.want)
		})
	}
}

func TestSuddenChangesRejectsBadWindow(t *testing.T) {
	e := newServer(t, nil)
	rec, _ := call(t, e, http.MethodPost, "/api/anomaly/sudden-changes", `{"values":[1,2,3],"window_size":1000}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBaseline(t *testing.T) {
	e := newServer(t, nil)

	rec, env := call(t, e, http.MethodPost, "/api/anomaly/baseline", `{"current_value":50,"baseline_values":[98,100,102,100]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var f models.AnomalyFinding
	require.NoError(t, json.Unmarshal(env.Data, &f))
	assert.True(t, f.IsAnomaly)
	assert.Equal(t, models.KindSuddenChange, f.KindOrEmpty())
	assert.Equal(t, models.SignalRisk, f.Signal)
}

func TestThresholdsRoundTrip(t *testing.T) {
	e := newServer(t, nil)

	rec, env := call(t, e, http.MethodGet, "/api/anomaly/thresholds", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view models.ThresholdView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, 2.5, view.ZThreshold)
	assert.InDelta(t, 15.0, view.ChangeThresholdPct, 1e-9)

	rec, env = call(t, e, http.MethodPut, "/api/anomaly/thresholds", `{"risk_threshold_pct":30,"z_threshold":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, 3.0, view.ZThreshold)
	assert.InDelta(t, 30.0, view.ChangeThresholdPct, 1e-9)

	rec, _ = call(t, e, http.MethodPut, "/api/anomaly/thresholds", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, e, http.MethodPut, "/api/anomaly/thresholds", `{"z_threshold":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoredSeries(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	values := []float64{10, 11, 10, 12, 11, 10, 9, 11, 10, 500}
	store := &memStore{}
	for i, v := range values {
		store.points = append(store.points, models.SeriesPoint{Time: t0.AddDate(0, 0, i), Value: v})
	}
	e := newServer(t, store)

	rec, env := call(t, e, http.MethodGet, "/api/anomaly/series?metric=sales&entity=store-1&from=2024-03-01&to=2024-03-10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res models.SeriesReport
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "day", res.Granularity)
	assert.Equal(t, 10, res.Points)
	assert.Equal(t, 4, res.Report.TotalAnomalies)

	rec, _ = call(t, e, http.MethodGet, "/api/anomaly/series?metric=sales&entity=store-1&from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, e, http.MethodGet, "/api/anomaly/series?metric=sales", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, e, http.MethodGet, "/api/anomaly/series?metric=sales&entity=s&granularity=hour", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptionalFeaturesUnavailable(t *testing.T) {
	e := newServer(t, nil)

	rec, _ := call(t, e, http.MethodGet, "/api/anomaly/series?metric=sales&entity=s", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = call(t, e, http.MethodPost, "/api/anomaly/jobs", `{"metric":"sales","entity":"s"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = call(t, e, http.MethodGet, "/api/anomaly/stream", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = call(t, e, http.MethodPost, "/api/anomaly/forecast", `{"metric":"sales","entity":"s"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEnqueueJob(t *testing.T) {
	q := &memQueue{}
	e := newServer(t, nil, WithJobs(q))

	rec, env := call(t, e, http.MethodPost, "/api/anomaly/jobs", `{"metric":"sales","entity":"s"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, string(env.Data), "job-42")
	assert.Equal(t, []string{usecase.AnalyzeJobType}, q.types)
}
