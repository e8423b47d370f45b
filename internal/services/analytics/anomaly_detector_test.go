package analytics

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"SalesPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetector() *AnomalyDetector {
	return NewAnomalyDetector(models.DefaultThresholds())
}

func ptr(v float64) *float64 { return &v }

func TestClassifySeverity(t *testing.T) {
	cases := []struct {
		score float64
		want  models.Severity
	}{
		{0, models.SeverityLow},
		{2, models.SeverityLow},
		{2.01, models.SeverityMedium},
		{-2.5, models.SeverityMedium},
		{3, models.SeverityMedium},
		{3.5, models.SeverityHigh},
		{4, models.SeverityHigh},
		{4.01, models.SeverityCritical},
		{-21, models.SeverityCritical},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifySeverity(c.score), "score %v", c.score)
	}
}

func TestZScoreTooShort(t *testing.T) {
	d := newDetector()
	assert.Empty(t, d.DetectOutliersZScore([]float64{1, 100}, nil))
}

func TestZScoreConstantSeries(t *testing.T) {
	d := newDetector()
	assert.Empty(t, d.DetectOutliersZScore([]float64{5, 5, 5, 5, 5}, nil))
}

func TestZScoreBoundaryNotFlagged(t *testing.T) {
	d := newDetector()
	d.SetThresholds(models.ThresholdUpdate{ZThreshold: ptr(1)})
	// every point sits exactly one deviation away
	assert.Empty(t, d.DetectOutliersZScore([]float64{-1, 1, -1, 1}, nil))
}

func TestZScoreFlagsSpike(t *testing.T) {
	d := newDetector()
	values := make([]float64, 0, 31)
	for i := 0; i < 30; i++ {
		values = append(values, float64(10+i%2))
	}
	values = append(values, 500)
	ts := make([]time.Time, len(values))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range ts {
		ts[i] = start.AddDate(0, 0, i)
	}

	out := d.DetectOutliersZScore(values, ts)
	require.Len(t, out, 1)
	f := out[0]
	assert.True(t, f.IsAnomaly)
	assert.Equal(t, models.KindOutlier, f.KindOrEmpty())
	assert.Equal(t, models.SeverityCritical, f.Severity)
	require.NotNil(t, f.Index)
	assert.Equal(t, 30, *f.Index)
	require.NotNil(t, f.Timestamp)
	assert.True(t, f.Timestamp.Equal(ts[30]))
	assert.Equal(t, 500.0, f.Value)
	assert.Equal(t, 1.0, f.Confidence)
	assert.Greater(t, f.Score, 4.0)
}

func TestZScoreShortTimestampsOmitted(t *testing.T) {
	d := newDetector()
	values := []float64{10, 11, 10, 12, 11, 10, 9, 11, 10, 500}
	out := d.DetectOutliersZScore(values, []time.Time{time.Now()})
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Timestamp)
	require.NotNil(t, out[0].Index)
	assert.Equal(t, 9, *out[0].Index)
}

func TestIQRQuartilesAndFences(t *testing.T) {
	q1, median, q3 := quartiles([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 100})
	assert.InDelta(t, 3.25, q1, 1e-9)
	assert.InDelta(t, 5.5, median, 1e-9)
	assert.InDelta(t, 7.75, q3, 1e-9)
}

func TestIQROutlier(t *testing.T) {
	d := newDetector()
	out := d.DetectOutliersIQR([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 100}, nil)
	require.Len(t, out, 1)
	f := out[0]
	require.NotNil(t, f.Index)
	assert.Equal(t, 9, *f.Index)
	assert.InDelta(t, 5.5, f.ExpectedValue, 1e-9)
	assert.InDelta(t, 94.5, f.Deviation, 1e-9)
	assert.InDelta(t, 21.0, f.Score, 1e-9)
	assert.Equal(t, models.SeverityCritical, f.Severity)
	assert.Equal(t, 1.0, f.Confidence)
}

func TestIQRFenceInclusive(t *testing.T) {
	d := newDetector()
	// the upper fence depends on Q3 which moves with the last value; 14.5 and
	// 15.5 straddle it once Q3 is computed with the candidate in place
	assert.Empty(t, d.DetectOutliersIQR([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 14.5}, nil))
	out := d.DetectOutliersIQR([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 15.5}, nil)
	require.Len(t, out, 1)
	assert.Equal(t, 15.5, out[0].Value)
}

func TestIQRTooShort(t *testing.T) {
	d := newDetector()
	assert.Empty(t, d.DetectOutliersIQR([]float64{1, 2, 100}, nil))
}

func TestIQRZeroSpread(t *testing.T) {
	d := newDetector()
	out := d.DetectOutliersIQR([]float64{5, 5, 5, 5, 5, 9}, nil)
	require.Len(t, out, 1)
	assert.Equal(t, 0.0, out[0].Score)
	assert.Equal(t, models.SeverityLow, out[0].Severity)
}

func TestSuddenChangeRisk(t *testing.T) {
	d := newDetector()
	out := d.DetectSuddenChanges([]float64{100, 100, 100, 70}, nil, 3)
	require.Len(t, out, 1)
	f := out[0]
	assert.Equal(t, models.KindSuddenChange, f.KindOrEmpty())
	assert.Equal(t, models.SignalRisk, f.Signal)
	// a 30% drop is not below the high cutoff
	assert.Equal(t, models.SeverityMedium, f.Severity)
	assert.InDelta(t, 30.0, f.Deviation, 1e-9)
	assert.InDelta(t, -30.0, f.Score, 1e-9)
	assert.InDelta(t, 0.6, f.Confidence, 1e-9)
}

func TestSuddenChangeHighDrop(t *testing.T) {
	d := newDetector()
	out := d.DetectSuddenChanges([]float64{100, 100, 100, 50}, nil, 3)
	require.Len(t, out, 1)
	assert.Equal(t, models.SeverityHigh, out[0].Severity)
	assert.Equal(t, 1.0, out[0].Confidence)
}

func TestSuddenChangeOpportunity(t *testing.T) {
	d := newDetector()
	out := d.DetectSuddenChanges([]float64{1000, 1000, 1000, 1250}, nil, 3)
	require.Len(t, out, 1)
	f := out[0]
	assert.Equal(t, models.SignalOpportunity, f.Signal)
	assert.Equal(t, models.SeverityMedium, f.Severity)
	require.NotNil(t, f.Index)
	assert.Equal(t, 3, *f.Index)
	assert.InDelta(t, 25.0, f.Deviation, 1e-9)
	assert.InDelta(t, 0.5, f.Confidence, 1e-9)
}

func TestSuddenChangeOpportunityNeverEscalates(t *testing.T) {
	d := newDetector()
	out := d.DetectSuddenChanges([]float64{10, 10, 10, 100}, nil, 3)
	require.Len(t, out, 1)
	assert.Equal(t, models.SeverityMedium, out[0].Severity)
}

func TestSuddenChangeSkipsZeroAverage(t *testing.T) {
	d := newDetector()
	assert.Empty(t, d.DetectSuddenChanges([]float64{0, 0, 0, 50}, nil, 3))
}

func TestSuddenChangeTooShort(t *testing.T) {
	d := newDetector()
	assert.Empty(t, d.DetectSuddenChanges([]float64{100, 100, 50}, nil, 3))
}

func TestSuddenChangeDefaultWindow(t *testing.T) {
	d := newDetector()
	out := d.DetectSuddenChanges([]float64{100, 100, 100, 50}, nil, 0)
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Description, "3-period")
}

func TestTrendReversal(t *testing.T) {
	d := newDetector()
	out := d.DetectTrendBreak([]float64{1, 2, 3, 4, 5, 5, 4, 3, 2, 1}, nil, 5)
	require.Len(t, out, 1)
	f := out[0]
	assert.Equal(t, models.KindTrendBreak, f.KindOrEmpty())
	assert.Equal(t, models.SeverityHigh, f.Severity)
	require.NotNil(t, f.Index)
	assert.Equal(t, 5, *f.Index)
	assert.Equal(t, 1.0, f.Value)
	assert.InDelta(t, 10.0, f.ExpectedValue, 1e-9)
	assert.InDelta(t, -2.0, f.Score, 1e-9)
	assert.InDelta(t, 200.0, f.Deviation, 1e-9)
	assert.Equal(t, 1.0, f.Confidence)
	assert.Contains(t, f.Description, "reversal")
}

func TestTrendAcceleration(t *testing.T) {
	d := newDetector()
	out := d.DetectTrendBreak([]float64{1, 2, 3, 4, 5, 10, 20, 30, 40, 50}, nil, 5)
	require.Len(t, out, 1)
	assert.Equal(t, models.SeverityMedium, out[0].Severity)
	assert.InDelta(t, 9.0, out[0].Score, 1e-9)
	assert.Contains(t, out[0].Description, "accelerated")
}

func TestTrendFlatFirstHalf(t *testing.T) {
	d := newDetector()
	assert.Empty(t, d.DetectTrendBreak([]float64{3, 3, 3, 3, 3, 1, 2, 3, 4, 5}, nil, 5))
}

func TestTrendSmallChangeIgnored(t *testing.T) {
	d := newDetector()
	assert.Empty(t, d.DetectTrendBreak([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, nil, 5))
}

func TestTrendTooShort(t *testing.T) {
	d := newDetector()
	assert.Empty(t, d.DetectTrendBreak([]float64{1, 2, 3, 4, 5, 4, 3, 2, 1}, nil, 5))
}

func TestAnalyzeSeriesInsufficientData(t *testing.T) {
	d := newDetector()
	_, err := d.AnalyzeSeries([]float64{1, 2}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestAnalyzeSeriesReport(t *testing.T) {
	d := newDetector()
	values := []float64{10, 11, 10, 12, 11, 10, 9, 11, 10, 500}
	r, err := d.AnalyzeSeries(values, nil)
	require.NoError(t, err)

	assert.Equal(t, 10, r.Statistics.Count)
	assert.InDelta(t, 59.4, r.Statistics.Mean, 1e-9)
	assert.InDelta(t, 10.5, r.Statistics.Median, 1e-9)
	assert.Equal(t, 9.0, r.Statistics.Min)
	assert.Equal(t, 500.0, r.Statistics.Max)

	assert.Equal(t, 1, r.Summary.ByType.Outliers)
	assert.Equal(t, 2, r.Summary.ByType.SuddenChanges)
	assert.Equal(t, 1, r.Summary.ByType.TrendBreaks)
	assert.Equal(t, 4, r.TotalAnomalies)
	assert.Len(t, r.Anomalies, r.TotalAnomalies)
	assert.InDelta(t, 0.4, r.AnomalyRate, 1e-9)
	assert.True(t, r.HighAnomalyRateAlert)

	sev := r.Summary.BySeverity
	assert.Equal(t, r.TotalAnomalies, sev.High+sev.Medium+sev.Low)

	// the spike is the only z-score outlier; with ten points the population
	// z-score cannot exceed three
	out := r.Anomalies[0]
	require.NotNil(t, out.Index)
	assert.Equal(t, 9, *out.Index)
	assert.Less(t, math.Abs(out.Score), 3.0)
}

func TestAnalyzeSeriesQuietSeries(t *testing.T) {
	d := newDetector()
	r, err := d.AnalyzeSeries([]float64{5, 5, 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, r.TotalAnomalies)
	assert.NotNil(t, r.Anomalies)
	assert.False(t, r.HighAnomalyRateAlert)
}

func TestAnalyzeSeriesIdempotent(t *testing.T) {
	d := newDetector()
	values := []float64{10, 11, 10, 12, 11, 10, 9, 11, 10, 500}
	a, err := d.AnalyzeSeries(values, nil)
	require.NoError(t, err)
	b, err := d.AnalyzeSeries(values, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBaselineInsufficient(t *testing.T) {
	d := newDetector()
	f := d.CompareWithBaseline(100, []float64{1})
	assert.False(t, f.IsAnomaly)
	assert.Contains(t, f.Description, "insufficient")
}

func TestBaselineConstant(t *testing.T) {
	d := newDetector()
	f := d.CompareWithBaseline(50, []float64{50, 50, 50})
	assert.False(t, f.IsAnomaly)

	f = d.CompareWithBaseline(60, []float64{50, 50, 50})
	assert.True(t, f.IsAnomaly)
	assert.Equal(t, models.KindOutlier, f.KindOrEmpty())
	assert.Equal(t, 10.0, f.Deviation)
	assert.False(t, math.IsNaN(f.Score))
}

func TestBaselineConstantFractional(t *testing.T) {
	d := newDetector()
	for _, base := range [][]float64{
		{0.1, 0.1, 0.1},
		{0.7, 0.7, 0.7, 0.7, 0.7},
		{19.99, 19.99, 19.99},
	} {
		f := d.CompareWithBaseline(base[0], base)
		assert.False(t, f.IsAnomaly, "baseline %v", base)
		assert.Equal(t, base[0], f.ExpectedValue)
		assert.Contains(t, f.Description, "matches a constant baseline")
	}

	f := d.CompareWithBaseline(0.2, []float64{0.1, 0.1, 0.1})
	assert.True(t, f.IsAnomaly)
	assert.Equal(t, models.KindOutlier, f.KindOrEmpty())
	assert.InDelta(t, 0.1, f.Deviation, 1e-12)
}

func TestBaselineEqualToMean(t *testing.T) {
	d := newDetector()
	f := d.CompareWithBaseline(100, []float64{98, 102})
	assert.False(t, f.IsAnomaly)
	assert.Nil(t, f.Kind)
	assert.Equal(t, 100.0, f.ExpectedValue)
	assert.Equal(t, 0.0, f.Score)
}

func TestBaselineWithinRange(t *testing.T) {
	d := newDetector()
	f := d.CompareWithBaseline(101, []float64{98, 100, 102, 100})
	assert.False(t, f.IsAnomaly)
	assert.Nil(t, f.Kind)
	assert.Equal(t, 100.0, f.ExpectedValue)
	assert.Contains(t, f.Description, "within normal range")
}

func TestBaselineDrop(t *testing.T) {
	d := newDetector()
	f := d.CompareWithBaseline(50, []float64{98, 100, 102, 100})
	assert.True(t, f.IsAnomaly)
	assert.Equal(t, models.KindSuddenChange, f.KindOrEmpty())
	assert.Equal(t, models.SignalRisk, f.Signal)
	assert.Equal(t, models.SeverityHigh, f.Severity)
	assert.InDelta(t, 50.0, f.Deviation, 1e-9)
}

func TestBaselineRise(t *testing.T) {
	d := newDetector()
	f := d.CompareWithBaseline(150, []float64{98, 100, 102, 100})
	assert.True(t, f.IsAnomaly)
	assert.Equal(t, models.SignalOpportunity, f.Signal)
	assert.Equal(t, models.SeverityMedium, f.Severity)
}

func TestBaselineOutlierSmallPercent(t *testing.T) {
	d := newDetector()
	// far in sigma terms but only a 5% move
	f := d.CompareWithBaseline(105, []float64{99.9, 100, 100.1, 100})
	assert.True(t, f.IsAnomaly)
	assert.Equal(t, models.KindOutlier, f.KindOrEmpty())
	assert.Equal(t, models.SeverityCritical, f.Severity)
}

func TestThresholdsRoundTrip(t *testing.T) {
	d := newDetector()
	v := d.AlertThresholds()
	assert.InDelta(t, 15.0, v.ChangeThresholdPct, 1e-9)
	assert.InDelta(t, 20.0, v.OpportunityThresholdPct, 1e-9)
	assert.InDelta(t, 5.0, v.AnomalyRateThresholdPct, 1e-9)
	assert.Equal(t, 2.5, v.ZThreshold)

	d.SetThresholds(models.ThresholdUpdate{RiskThresholdPct: ptr(10)})
	v = d.AlertThresholds()
	assert.InDelta(t, 10.0, v.ChangeThresholdPct, 1e-9)
	assert.InDelta(t, 20.0, v.OpportunityThresholdPct, 1e-9)
	assert.Equal(t, 2.5, v.ZThreshold)

	d.SetThresholds(models.ThresholdUpdate{ZThreshold: ptr(3)})
	assert.Equal(t, 3.0, d.Thresholds().ZThreshold)
	assert.InDelta(t, 0.10, d.Thresholds().ChangeThreshold, 1e-9)
}

func TestThresholdsAffectSuddenChanges(t *testing.T) {
	d := newDetector()
	values := []float64{100, 100, 100, 88}
	assert.Empty(t, d.DetectSuddenChanges(values, nil, 3))
	d.SetThresholds(models.ThresholdUpdate{RiskThresholdPct: ptr(10)})
	assert.Len(t, d.DetectSuddenChanges(values, nil, 3), 1)
}

func TestRestore(t *testing.T) {
	d := newDetector()
	th := models.DetectorThresholds{ZThreshold: 3, IQRMultiplier: 2, ChangeThreshold: 0.1, OpportunityThreshold: 0.3, AnomalyRateThreshold: 0.1}
	d.Restore(th)
	assert.Equal(t, th, d.Thresholds())
}

func TestConcurrentUse(t *testing.T) {
	d := newDetector()
	values := []float64{10, 11, 10, 12, 11, 10, 9, 11, 10, 500}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			d.SetThresholds(models.ThresholdUpdate{ZThreshold: ptr(2 + float64(i)/10)})
		}(i)
		go func() {
			defer wg.Done()
			_, err := d.AnalyzeSeries(values, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
