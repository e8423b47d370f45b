package service

import (
	"context"
	"time"

	"SalesPulse/internal/domain/models"
)

// AnomalyDetector runs statistical detectors over numeric series.
type AnomalyDetector interface {
	DetectOutliersZScore(values []float64, ts []time.Time) []models.AnomalyFinding
	DetectOutliersIQR(values []float64, ts []time.Time) []models.AnomalyFinding
	DetectSuddenChanges(values []float64, ts []time.Time, windowSize int) []models.AnomalyFinding
	DetectTrendBreak(values []float64, ts []time.Time, minPeriods int) []models.AnomalyFinding
	AnalyzeSeries(values []float64, ts []time.Time) (*models.AnalysisReport, error)
	CompareWithBaseline(current float64, baseline []float64) models.AnomalyFinding
	AlertThresholds() models.ThresholdView
	Thresholds() models.DetectorThresholds
	SetThresholds(u models.ThresholdUpdate)
	Restore(th models.DetectorThresholds)
}

// Forecaster produces a projected series from history using a named model.
type Forecaster interface {
	Forecast(ctx context.Context, model string, history []float64, horizon int) ([]float64, error)
}
