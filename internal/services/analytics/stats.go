package analytics

import (
	"math"
	"sort"

	"SalesPulse/internal/domain/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ClassifySeverity maps an absolute z-like score to a tier.
// The bands are fixed in sigma/IQR units and do not follow the configured z threshold.
func ClassifySeverity(score float64) models.Severity {
	s := math.Abs(score)
	switch {
	case s > 4:
		return models.SeverityCritical
	case s > 3:
		return models.SeverityHigh
	case s > 2:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// percentile returns the p-quantile (0..1) of sorted data using linear
// interpolation between closest ranks: idx = p*(n-1).
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	idx := p * float64(n-1)
	lo := int(math.Floor(idx))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	w := idx - float64(lo)
	return sorted[lo] + w*(sorted[hi]-sorted[lo])
}

func sortedCopy(values []float64) []float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	return s
}

// quartiles returns Q1, median and Q3.
func quartiles(values []float64) (q1, median, q3 float64) {
	s := sortedCopy(values)
	return percentile(s, 0.25), percentile(s, 0.5), percentile(s, 0.75)
}

// meanStd returns the population mean and standard deviation.
func meanStd(values []float64) (mean, std float64) {
	return stat.PopMeanStdDev(values, nil)
}

// constant reports whether every element equals the first.
func constant(values []float64) bool {
	return floats.Min(values) == floats.Max(values)
}

// fitLine fits y = intercept + slope*x with x = 0..n-1.
func fitLine(y []float64) (intercept, slope float64) {
	x := make([]float64, len(y))
	for i := range x {
		x[i] = float64(i)
	}
	return stat.LinearRegression(x, y, nil, false)
}

func describe(values []float64) models.SeriesStatistics {
	if len(values) == 0 {
		return models.SeriesStatistics{}
	}
	mean, std := meanStd(values)
	return models.SeriesStatistics{
		Count:  len(values),
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Median: percentile(sortedCopy(values), 0.5),
	}
}

// confidence saturates at 1. NaN (zero threshold and zero score) maps to 0.
func confidence(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Min(1, x)
}
