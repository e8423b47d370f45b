package repository

import (
	"context"
	"time"

	"SalesPulse/internal/domain/models"
)

// SeriesStore provides access to stored business series.
type SeriesStore interface {
	GetSeries(ctx context.Context, key models.SeriesKey, from, to time.Time, g Granularity) ([]models.SeriesPoint, error)
	GetLatestN(ctx context.Context, key models.SeriesKey, n int) ([]models.SeriesPoint, error)
	Append(ctx context.Context, o *models.Observation) error
	Health(ctx context.Context) error
}

// AlertPublisher hands alert events to the alerting subsystem.
type AlertPublisher interface {
	Publish(ctx context.Context, e *models.AlertEvent) error
	PublishBatch(ctx context.Context, events []*models.AlertEvent) error
	Close() error
}

// ThresholdStore persists detector thresholds across restarts and replicas.
type ThresholdStore interface {
	Load(ctx context.Context) (models.DetectorThresholds, bool, error)
	Save(ctx context.Context, th models.DetectorThresholds) error
}

type Metrics interface {
	RecordAnalysis(source string, points int)
	RecordFinding(kind models.AnomalyKind, sev models.Severity)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
