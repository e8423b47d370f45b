package usecase

import (
	"context"
	"testing"

	"SalesPulse/internal/domain/models"
	"SalesPulse/pkg/logger"
	"SalesPulse/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finding(s models.Severity, conf float64) models.AnomalyFinding {
	k := models.KindOutlier
	return models.AnomalyFinding{IsAnomaly: true, Kind: &k, Severity: s, Confidence: conf}
}

func TestAlertDispatcherSelect(t *testing.T) {
	d := NewAlertDispatcher(nil, nil, metrics.Nop{}, logger.Nop(), AlertPolicy{
		MinSeverity:    models.SeverityMedium,
		MaxPerAnalysis: 3,
	})

	in := []models.AnomalyFinding{
		finding(models.SeverityLow, 1),
		finding(models.SeverityMedium, 0.9),
		finding(models.SeverityCritical, 0.5),
		finding(models.SeverityHigh, 0.4),
		finding(models.SeverityHigh, 0.8),
		{IsAnomaly: false, Severity: models.SeverityCritical},
	}
	got := d.Select(in)

	require.Len(t, got, 3)
	assert.Equal(t, models.SeverityCritical, got[0].Severity)
	assert.Equal(t, models.SeverityHigh, got[1].Severity)
	assert.Equal(t, 0.8, got[1].Confidence)
	assert.Equal(t, models.SeverityHigh, got[2].Severity)
	assert.Equal(t, 0.4, got[2].Confidence)
}

func TestAlertDispatcherUnlimited(t *testing.T) {
	d := NewAlertDispatcher(nil, nil, metrics.Nop{}, logger.Nop(), AlertPolicy{})
	got := d.Select([]models.AnomalyFinding{finding(models.SeverityLow, 0), finding(models.SeverityLow, 0)})
	assert.Len(t, got, 2)
}

func TestAlertDispatcherDispatch(t *testing.T) {
	pub := &fakePublisher{}
	hub := &fakeHub{}
	d := NewAlertDispatcher(pub, hub, metrics.Nop{}, logger.Nop(), AlertPolicy{MinSeverity: models.SeverityHigh})
	key := models.SeriesKey{Metric: "sales", Entity: "store-7"}

	events := d.Dispatch(context.Background(), key, "series", []models.AnomalyFinding{
		finding(models.SeverityMedium, 1),
		finding(models.SeverityHigh, 1),
	})

	require.Len(t, events, 1)
	e := events[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "sales", e.Metric)
	assert.Equal(t, "store-7", e.Entity)
	assert.Equal(t, "series", e.Source)
	assert.False(t, e.CreatedAt.IsZero())
	assert.Equal(t, events, pub.events)
	assert.Equal(t, events, hub.events)
}

func TestAlertDispatcherPublishFailureStillBroadcasts(t *testing.T) {
	pub := &fakePublisher{err: errBoom}
	hub := &fakeHub{}
	d := NewAlertDispatcher(pub, hub, metrics.Nop{}, logger.Nop(), AlertPolicy{})

	events := d.Dispatch(context.Background(), models.SeriesKey{Metric: "m", Entity: "e"}, "observation",
		[]models.AnomalyFinding{finding(models.SeverityLow, 1)})

	assert.Len(t, events, 1)
	assert.Empty(t, pub.events)
	assert.Len(t, hub.events, 1)
}

func TestAlertDispatcherNothingSelected(t *testing.T) {
	pub := &fakePublisher{}
	d := NewAlertDispatcher(pub, nil, metrics.Nop{}, logger.Nop(), AlertPolicy{MinSeverity: models.SeverityCritical})
	assert.Nil(t, d.Dispatch(context.Background(), models.SeriesKey{}, "series", []models.AnomalyFinding{finding(models.SeverityHigh, 1)}))
	assert.Empty(t, pub.events)
}
