package analytics

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"SalesPulse/internal/domain/models"
	domsvc "SalesPulse/internal/domain/service"
	"SalesPulse/internal/services/features"
)

// ErrInsufficientData is returned by AnalyzeSeries when the series is too short.
var ErrInsufficientData = errors.New("insufficient data")

const (
	minZScorePoints   = 3
	minIQRPoints      = 4
	minAnalyzePoints  = 3
	minBaselinePoints = 2

	DefaultWindowSize = 3
	DefaultMinPeriods = 5

	highDropCutoff     = -0.30
	changeSaturation   = 0.50
	trendBreakMinRatio = 0.5
)

// AnomalyDetector is an in-process statistical engine. Thresholds can be
// changed at runtime; each call works on a snapshot taken at entry.
type AnomalyDetector struct {
	mu sync.RWMutex
	th models.DetectorThresholds
}

func NewAnomalyDetector(th models.DetectorThresholds) *AnomalyDetector {
	return &AnomalyDetector{th: th}
}

func (d *AnomalyDetector) snapshot() models.DetectorThresholds {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.th
}

// Thresholds returns the current configuration in internal units.
func (d *AnomalyDetector) Thresholds() models.DetectorThresholds { return d.snapshot() }

// AlertThresholds reports the configuration with percentage thresholds x100.
func (d *AnomalyDetector) AlertThresholds() models.ThresholdView {
	th := d.snapshot()
	return models.ThresholdView{
		ZThreshold:              th.ZThreshold,
		IQRMultiplier:           th.IQRMultiplier,
		ChangeThresholdPct:      th.ChangeThreshold * 100,
		OpportunityThresholdPct: th.OpportunityThreshold * 100,
		AnomalyRateThresholdPct: th.AnomalyRateThreshold * 100,
	}
}

// SetThresholds applies the non-nil fields. Percentages are divided by 100;
// the z threshold is stored as given.
func (d *AnomalyDetector) SetThresholds(u models.ThresholdUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u.RiskThresholdPct != nil {
		d.th.ChangeThreshold = *u.RiskThresholdPct / 100
	}
	if u.OpportunityThresholdPct != nil {
		d.th.OpportunityThreshold = *u.OpportunityThresholdPct / 100
	}
	if u.ZThreshold != nil {
		d.th.ZThreshold = *u.ZThreshold
	}
}

// Restore installs a previously persisted configuration.
func (d *AnomalyDetector) Restore(th models.DetectorThresholds) {
	d.mu.Lock()
	d.th = th
	d.mu.Unlock()
}

func (d *AnomalyDetector) DetectOutliersZScore(values []float64, ts []time.Time) []models.AnomalyFinding {
	return zScoreOutliers(values, ts, d.snapshot())
}

func (d *AnomalyDetector) DetectOutliersIQR(values []float64, ts []time.Time) []models.AnomalyFinding {
	return iqrOutliers(values, ts, d.snapshot())
}

// DetectSuddenChanges compares each point with the mean of the windowSize points before it.
func (d *AnomalyDetector) DetectSuddenChanges(values []float64, ts []time.Time, windowSize int) []models.AnomalyFinding {
	return suddenChanges(values, ts, windowSize, d.snapshot())
}

// DetectTrendBreak compares least-squares slopes of the two halves of the series.
// It reports at most one finding.
func (d *AnomalyDetector) DetectTrendBreak(values []float64, ts []time.Time, minPeriods int) []models.AnomalyFinding {
	return trendBreak(values, ts, minPeriods)
}

// AnalyzeSeries runs the z-score, sudden-change and trend-break detectors and
// aggregates their findings. IQR is not part of the aggregate and findings are
// not de-duplicated across detectors.
func (d *AnomalyDetector) AnalyzeSeries(values []float64, ts []time.Time) (*models.AnalysisReport, error) {
	n := len(values)
	if n < minAnalyzePoints {
		return nil, fmt.Errorf("%w: need at least %d points for analysis, got %d", ErrInsufficientData, minAnalyzePoints, n)
	}
	th := d.snapshot()

	found := make([]models.AnomalyFinding, 0)
	found = append(found, zScoreOutliers(values, ts, th)...)
	found = append(found, suddenChanges(values, ts, DefaultWindowSize, th)...)
	found = append(found, trendBreak(values, ts, DefaultMinPeriods)...)

	rate := float64(len(found)) / float64(n)
	report := &models.AnalysisReport{
		Statistics:           describe(values),
		TotalAnomalies:       len(found),
		AnomalyRate:          rate,
		HighAnomalyRateAlert: rate > th.AnomalyRateThreshold,
		Anomalies:            found,
	}
	for _, f := range found {
		switch f.KindOrEmpty() {
		case models.KindOutlier:
			report.Summary.ByType.Outliers++
		case models.KindSuddenChange:
			report.Summary.ByType.SuddenChanges++
		case models.KindTrendBreak:
			report.Summary.ByType.TrendBreaks++
		}
		switch f.Severity {
		case models.SeverityHigh, models.SeverityCritical:
			report.Summary.BySeverity.High++
		case models.SeverityMedium:
			report.Summary.BySeverity.Medium++
		default:
			report.Summary.BySeverity.Low++
		}
	}
	return report, nil
}

// CompareWithBaseline evaluates a single new value against historical values.
// It always returns a result; IsAnomaly is false when the baseline is too small.
func (d *AnomalyDetector) CompareWithBaseline(current float64, baseline []float64) models.AnomalyFinding {
	th := d.snapshot()
	if len(baseline) < minBaselinePoints {
		return models.AnomalyFinding{
			Severity:    models.SeverityLow,
			Value:       current,
			Description: fmt.Sprintf("insufficient baseline data: %d values, need %d", len(baseline), minBaselinePoints),
		}
	}

	mean, std := meanStd(baseline)
	if std == 0 || constant(baseline) {
		// The computed mean may be one ulp off the shared value.
		ref := baseline[0]
		if current == ref {
			return models.AnomalyFinding{
				Severity:      models.SeverityLow,
				Value:         current,
				ExpectedValue: ref,
				Description:   "value matches a constant baseline",
			}
		}
		return models.AnomalyFinding{
			IsAnomaly:     true,
			Kind:          kindPtr(models.KindOutlier),
			Severity:      models.SeverityLow,
			Value:         current,
			ExpectedValue: ref,
			Deviation:     math.Abs(current - ref),
			Description:   fmt.Sprintf("value %.2f differs from a constant baseline of %.2f", current, ref),
		}
	}

	z := (current - mean) / std
	absZ := math.Abs(z)
	f := models.AnomalyFinding{
		Severity:      models.SeverityLow,
		Value:         current,
		ExpectedValue: mean,
		Deviation:     math.Abs(current - mean),
		Score:         z,
		Confidence:    confidence(absZ / (2 * th.ZThreshold)),
	}
	if absZ <= th.ZThreshold {
		f.Description = fmt.Sprintf("value within normal range (z=%.2f)", z)
		return f
	}

	f.IsAnomaly = true
	pct := features.PercentChange(mean, current)
	switch {
	case pct < -th.ChangeThreshold:
		f.Kind = kindPtr(models.KindSuddenChange)
		f.Signal = models.SignalRisk
		f.Severity = models.SeverityMedium
		if pct < highDropCutoff {
			f.Severity = models.SeverityHigh
		}
		f.Deviation = math.Abs(pct) * 100
		f.Description = fmt.Sprintf("drop of %.1f%% vs. historical average %.2f", math.Abs(pct)*100, mean)
	case pct > th.OpportunityThreshold:
		f.Kind = kindPtr(models.KindSuddenChange)
		f.Signal = models.SignalOpportunity
		f.Severity = models.SeverityMedium
		f.Deviation = pct * 100
		f.Description = fmt.Sprintf("increase of %.1f%% vs. historical average %.2f", pct*100, mean)
	default:
		f.Kind = kindPtr(models.KindOutlier)
		f.Severity = ClassifySeverity(absZ)
		f.Description = fmt.Sprintf("value %.2f is %.2f standard deviations from historical average %.2f", current, z, mean)
	}
	return f
}

func zScoreOutliers(values []float64, ts []time.Time, th models.DetectorThresholds) []models.AnomalyFinding {
	if len(values) < minZScorePoints {
		return nil
	}
	mean, std := meanStd(values)
	if std == 0 {
		return nil
	}
	var out []models.AnomalyFinding
	for i, v := range values {
		z := (v - mean) / std
		absZ := math.Abs(z)
		if absZ <= th.ZThreshold {
			continue
		}
		out = append(out, models.AnomalyFinding{
			IsAnomaly:     true,
			Kind:          kindPtr(models.KindOutlier),
			Severity:      ClassifySeverity(absZ),
			Value:         v,
			ExpectedValue: mean,
			Deviation:     math.Abs(v - mean),
			Score:         z,
			Confidence:    confidence(absZ / (2 * th.ZThreshold)),
			Description:   fmt.Sprintf("value %.2f deviates %.2f standard deviations from mean %.2f", v, z, mean),
			Index:         intPtr(i),
			Timestamp:     timeAt(ts, i),
		})
	}
	return out
}

func iqrOutliers(values []float64, ts []time.Time, th models.DetectorThresholds) []models.AnomalyFinding {
	if len(values) < minIQRPoints {
		return nil
	}
	q1, median, q3 := quartiles(values)
	iqr := q3 - q1
	lower := q1 - th.IQRMultiplier*iqr
	upper := q3 + th.IQRMultiplier*iqr

	var out []models.AnomalyFinding
	for i, v := range values {
		if v >= lower && v <= upper {
			continue
		}
		dist := math.Abs(v - median)
		score := 0.0
		if iqr != 0 {
			score = dist / iqr
		}
		out = append(out, models.AnomalyFinding{
			IsAnomaly:     true,
			Kind:          kindPtr(models.KindOutlier),
			Severity:      ClassifySeverity(score),
			Value:         v,
			ExpectedValue: median,
			Deviation:     dist,
			Score:         score,
			Confidence:    confidence(score / 3),
			Description:   fmt.Sprintf("value %.2f outside range [%.2f, %.2f] (IQR method)", v, lower, upper),
			Index:         intPtr(i),
			Timestamp:     timeAt(ts, i),
		})
	}
	return out
}

func suddenChanges(values []float64, ts []time.Time, window int, th models.DetectorThresholds) []models.AnomalyFinding {
	if window <= 0 {
		window = DefaultWindowSize
	}
	if len(values) < window+1 {
		return nil
	}
	var out []models.AnomalyFinding
	for i := window; i < len(values); i++ {
		var sum float64
		for _, v := range values[i-window : i] {
			sum += v
		}
		avg := sum / float64(window)
		if avg == 0 {
			continue
		}
		cur := values[i]
		change := features.PercentChange(avg, cur)

		f := models.AnomalyFinding{
			IsAnomaly:     true,
			Kind:          kindPtr(models.KindSuddenChange),
			Value:         cur,
			ExpectedValue: avg,
			Score:         change * 100,
			Confidence:    confidence(math.Abs(change) / changeSaturation),
			Index:         intPtr(i),
			Timestamp:     timeAt(ts, i),
		}
		switch {
		case change < -th.ChangeThreshold:
			f.Signal = models.SignalRisk
			f.Severity = models.SeverityMedium
			if change < highDropCutoff {
				f.Severity = models.SeverityHigh
			}
			f.Deviation = math.Abs(change) * 100
			f.Description = fmt.Sprintf("risk: drop of %.1f%% vs. trailing %d-period average %.2f", math.Abs(change)*100, window, avg)
		case change > th.OpportunityThreshold:
			// opportunities never escalate above medium
			f.Signal = models.SignalOpportunity
			f.Severity = models.SeverityMedium
			f.Deviation = change * 100
			f.Description = fmt.Sprintf("opportunity: rise of %.1f%% vs. trailing %d-period average %.2f", change*100, window, avg)
		default:
			continue
		}
		out = append(out, f)
	}
	return out
}

func trendBreak(values []float64, ts []time.Time, minPeriods int) []models.AnomalyFinding {
	if minPeriods <= 0 {
		minPeriods = DefaultMinPeriods
	}
	n := len(values)
	if n < 2*minPeriods {
		return nil
	}
	mid := n / 2
	first, second := values[:mid], values[mid:]
	if len(first) < 2 || len(second) < 2 {
		return nil
	}
	intercept1, slope1 := fitLine(first)
	_, slope2 := fitLine(second)
	if slope1 == 0 {
		return nil
	}
	change := (slope2 - slope1) / math.Abs(slope1)
	if math.Abs(change) <= trendBreakMinRatio {
		return nil
	}

	var sev models.Severity
	var desc string
	if slope1*slope2 < 0 {
		sev = models.SeverityHigh
		if slope1 > 0 {
			desc = fmt.Sprintf("trend reversal: ascending (%.2f/period) to descending (%.2f/period)", slope1, slope2)
		} else {
			desc = fmt.Sprintf("trend reversal: descending (%.2f/period) to ascending (%.2f/period)", slope1, slope2)
		}
	} else {
		sev = models.SeverityMedium
		pace := "slowed"
		if math.Abs(slope2) > math.Abs(slope1) {
			pace = "accelerated"
		}
		desc = fmt.Sprintf("trend %s: slope changed %.1f%% (%.2f to %.2f per period)", pace, change*100, slope1, slope2)
	}

	return []models.AnomalyFinding{{
		IsAnomaly:     true,
		Kind:          kindPtr(models.KindTrendBreak),
		Severity:      sev,
		Value:         values[n-1],
		ExpectedValue: intercept1 + slope1*float64(n-1),
		Deviation:     math.Abs(change) * 100,
		Score:         change,
		Confidence:    confidence(math.Abs(change)),
		Description:   desc,
		Index:         intPtr(mid),
		Timestamp:     timeAt(ts, mid),
	}}
}

func kindPtr(k models.AnomalyKind) *models.AnomalyKind { return &k }

func intPtr(i int) *int { return &i }

func timeAt(ts []time.Time, i int) *time.Time {
	if i < 0 || i >= len(ts) {
		return nil
	}
	t := ts[i]
	return &t
}

var _ domsvc.AnomalyDetector = (*AnomalyDetector)(nil)
