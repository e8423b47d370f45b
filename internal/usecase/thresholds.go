package usecase

import (
	"context"
	"fmt"

	"SalesPulse/internal/domain/models"
	drepo "SalesPulse/internal/domain/repository"
	dsvc "SalesPulse/internal/domain/service"
	applogger "SalesPulse/pkg/logger"
)

// ThresholdService reads and updates detector thresholds, persisting them
// when a store is configured.
type ThresholdService struct {
	detector dsvc.AnomalyDetector
	store    drepo.ThresholdStore
	metrics  drepo.Metrics
	log      *applogger.Logger
}

// NewThresholdService creates the service. store may be nil.
func NewThresholdService(detector dsvc.AnomalyDetector, store drepo.ThresholdStore, metrics drepo.Metrics, l *applogger.Logger) *ThresholdService {
	return &ThresholdService{detector: detector, store: store, metrics: metrics, log: l}
}

// Restore applies persisted thresholds, if any, to the detector.
func (s *ThresholdService) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	th, found, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load thresholds: %w", err)
	}
	if !found {
		return nil
	}
	s.detector.Restore(th)
	s.log.Info("detector thresholds restored",
		applogger.Float64("z_threshold", th.ZThreshold),
		applogger.Float64("change_threshold", th.ChangeThreshold),
		applogger.Float64("opportunity_threshold", th.OpportunityThreshold),
	)
	return nil
}

// Current returns the externally reported thresholds.
func (s *ThresholdService) Current() models.ThresholdView {
	return s.detector.AlertThresholds()
}

// Update applies u and persists the result. A persistence failure is logged;
// the in-memory update stays in effect.
func (s *ThresholdService) Update(ctx context.Context, u models.ThresholdUpdate) models.ThresholdView {
	s.detector.SetThresholds(u)
	if s.store != nil {
		if err := s.store.Save(ctx, s.detector.Thresholds()); err != nil {
			s.metrics.RecordError("threshold_persist")
			s.log.Error("persist thresholds failed", applogger.Error(err))
		}
	}
	view := s.detector.AlertThresholds()
	s.log.Info("detector thresholds updated",
		applogger.Float64("z_threshold", view.ZThreshold),
		applogger.Float64("change_threshold_pct", view.ChangeThresholdPct),
		applogger.Float64("opportunity_threshold_pct", view.OpportunityThresholdPct),
	)
	return view
}
