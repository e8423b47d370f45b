package features

import (
	"math"
	"time"

	"SalesPulse/internal/domain/models"
	"SalesPulse/internal/domain/repository"
)

// Split separates stored points into parallel value and timestamp slices.
// It returns nils for an empty input.
func Split(points []models.SeriesPoint) ([]float64, []time.Time) {
	if len(points) == 0 {
		return nil, nil
	}
	values := make([]float64, len(points))
	ts := make([]time.Time, len(points))
	for i, p := range points {
		values[i] = p.Value
		ts[i] = p.Time
	}
	return values, ts
}

// Values returns only the values of points.
func Values(points []models.SeriesPoint) []float64 {
	v, _ := Split(points)
	return v
}

// AlignRange rounds a time range to bucket boundaries for the granularity.
// Weeks start on Monday, matching ClickHouse toStartOfWeek mode 1.
func AlignRange(from, to time.Time, g repository.Granularity) (time.Time, time.Time) {
	from, to = from.UTC(), to.UTC()
	switch g {
	case repository.GranRaw:
		return from.Truncate(time.Second), to.Truncate(time.Second)
	case repository.GranWeek:
		return startOfWeek(from), startOfWeek(to)
	case repository.GranMonth:
		return startOfMonth(from), startOfMonth(to)
	default:
		return startOfDay(from), startOfDay(to)
	}
}

// NextBucket returns the start of the bucket after the one starting at t.
// Use it to turn an aligned end into an exclusive bound.
func NextBucket(t time.Time, g repository.Granularity) time.Time {
	switch g {
	case repository.GranRaw:
		return t.Add(time.Second)
	case repository.GranWeek:
		return t.AddDate(0, 0, 7)
	case repository.GranMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Extrapolate continues ts by n steps using the spacing of its last two
// entries. It returns nil when fewer than two timestamps are known.
func Extrapolate(ts []time.Time, n int) []time.Time {
	if len(ts) < 2 || n <= 0 {
		return nil
	}
	last := ts[len(ts)-1]
	step := last.Sub(ts[len(ts)-2])
	if step <= 0 {
		return nil
	}
	out := make([]time.Time, n)
	for i := range out {
		out[i] = last.Add(step * time.Duration(i+1))
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfWeek(t time.Time) time.Time {
	d := startOfDay(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PercentChange returns (cur-prev)/|prev| as a fraction, or 0 when prev is 0.
func PercentChange(prev, cur float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / math.Abs(prev)
}
