package features

import (
	"testing"
	"time"

	"SalesPulse/internal/domain/models"
	"SalesPulse/internal/domain/repository"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	points := []models.SeriesPoint{
		{Time: t0, Value: 1},
		{Time: t0.AddDate(0, 0, 1), Value: 2},
	}
	values, ts := Split(points)
	assert.Equal(t, []float64{1, 2}, values)
	assert.Equal(t, []time.Time{t0, t0.AddDate(0, 0, 1)}, ts)

	values, ts = Split(nil)
	assert.Nil(t, values)
	assert.Nil(t, ts)
}

func TestAlignRange(t *testing.T) {
	// Wednesday
	from := time.Date(2024, 5, 15, 13, 45, 10, 500, time.UTC)
	to := time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)

	cases := []struct {
		g        repository.Granularity
		wantFrom time.Time
		wantTo   time.Time
	}{
		{repository.GranRaw, time.Date(2024, 5, 15, 13, 45, 10, 0, time.UTC), to},
		{repository.GranDay, time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)},
		{repository.GranWeek, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 27, 0, 0, 0, 0, time.UTC)},
		{repository.GranMonth, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		f, tt := AlignRange(from, to, c.g)
		assert.True(t, f.Equal(c.wantFrom), "%s from: %v", c.g, f)
		assert.True(t, tt.Equal(c.wantTo), "%s to: %v", c.g, tt)
	}
}

func TestPercentChange(t *testing.T) {
	assert.InDelta(t, 0.25, PercentChange(100, 125), 1e-9)
	assert.InDelta(t, -0.5, PercentChange(-100, -150), 1e-9)
	assert.Equal(t, 0.0, PercentChange(0, 10))
}

func TestNextBucket(t *testing.T) {
	t0 := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), NextBucket(t0, repository.GranDay))
	assert.Equal(t, time.Date(2024, 2, 7, 0, 0, 0, 0, time.UTC), NextBucket(t0, repository.GranWeek))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), NextBucket(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), repository.GranMonth))
	assert.Equal(t, t0.Add(time.Second), NextBucket(t0, repository.GranRaw))
}

func TestExtrapolate(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ts := []time.Time{t0, t0.Add(24 * time.Hour)}

	got := Extrapolate(ts, 2)
	assert.Equal(t, []time.Time{t0.Add(48 * time.Hour), t0.Add(72 * time.Hour)}, got)

	assert.Nil(t, Extrapolate(ts[:1], 2))
	assert.Nil(t, Extrapolate([]time.Time{t0, t0}, 2))
	assert.Nil(t, Extrapolate(ts, 0))
}
