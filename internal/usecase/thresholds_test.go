package usecase

import (
	"context"
	"testing"

	"SalesPulse/internal/domain/models"
	"SalesPulse/internal/services/analytics"
	"SalesPulse/pkg/logger"
	"SalesPulse/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdServiceRestore(t *testing.T) {
	det := analytics.NewAnomalyDetector(models.DefaultThresholds())
	persisted := models.DefaultThresholds()
	persisted.ZThreshold = 3.5
	store := &fakeThresholdStore{th: persisted, found: true}

	s := NewThresholdService(det, store, metrics.Nop{}, logger.Nop())
	require.NoError(t, s.Restore(context.Background()))
	assert.Equal(t, 3.5, s.Current().ZThreshold)
}

func TestThresholdServiceRestoreNothingStored(t *testing.T) {
	det := analytics.NewAnomalyDetector(models.DefaultThresholds())
	s := NewThresholdService(det, &fakeThresholdStore{}, metrics.Nop{}, logger.Nop())
	require.NoError(t, s.Restore(context.Background()))
	assert.Equal(t, 2.5, s.Current().ZThreshold)

	require.NoError(t, NewThresholdService(det, nil, metrics.Nop{}, logger.Nop()).Restore(context.Background()))
}

func TestThresholdServiceUpdate(t *testing.T) {
	det := analytics.NewAnomalyDetector(models.DefaultThresholds())
	store := &fakeThresholdStore{}
	s := NewThresholdService(det, store, metrics.Nop{}, logger.Nop())

	risk := 25.0
	view := s.Update(context.Background(), models.ThresholdUpdate{RiskThresholdPct: &risk})

	assert.InDelta(t, 25.0, view.ChangeThresholdPct, 1e-9)
	assert.InDelta(t, 20.0, view.OpportunityThresholdPct, 1e-9)
	require.Len(t, store.saved, 1)
	assert.InDelta(t, 0.25, store.saved[0].ChangeThreshold, 1e-9)
}

func TestThresholdServiceUpdateSurvivesSaveFailure(t *testing.T) {
	det := analytics.NewAnomalyDetector(models.DefaultThresholds())
	s := NewThresholdService(det, &fakeThresholdStore{saveErr: errBoom}, metrics.Nop{}, logger.Nop())

	z := 3.0
	view := s.Update(context.Background(), models.ThresholdUpdate{ZThreshold: &z})
	assert.Equal(t, 3.0, view.ZThreshold)
	assert.Equal(t, 3.0, det.Thresholds().ZThreshold)
}
