package usecase

import (
	"context"
	"sort"
	"time"

	"SalesPulse/internal/domain/models"
	drepo "SalesPulse/internal/domain/repository"
	applogger "SalesPulse/pkg/logger"

	"github.com/google/uuid"
)

// Broadcaster pushes alerts to live subscribers.
type Broadcaster interface {
	Broadcast(e *models.AlertEvent) error
}

// AlertPolicy decides which findings become alerts.
type AlertPolicy struct {
	MinSeverity    models.Severity
	MaxPerAnalysis int // <= 0 means unlimited
}

// AlertDispatcher turns findings into AlertEvents and fans them out to the
// alert topic and the live stream. Delivery failures never fail the caller.
type AlertDispatcher struct {
	pub     drepo.AlertPublisher
	hub     Broadcaster
	metrics drepo.Metrics
	log     *applogger.Logger
	policy  AlertPolicy
	now     func() time.Time
}

// NewAlertDispatcher creates a dispatcher. pub and hub may be nil.
func NewAlertDispatcher(pub drepo.AlertPublisher, hub Broadcaster, metrics drepo.Metrics, l *applogger.Logger, policy AlertPolicy) *AlertDispatcher {
	return &AlertDispatcher{
		pub:     pub,
		hub:     hub,
		metrics: metrics,
		log:     l,
		policy:  policy,
		now:     time.Now,
	}
}

// Select filters anomalous findings at or above the minimum severity and
// orders them by severity then confidence, capped by the policy.
func (d *AlertDispatcher) Select(findings []models.AnomalyFinding) []models.AnomalyFinding {
	out := make([]models.AnomalyFinding, 0, len(findings))
	for _, f := range findings {
		if f.IsAnomaly && f.Severity >= d.policy.MinSeverity {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].Confidence > out[j].Confidence
	})
	if d.policy.MaxPerAnalysis > 0 && len(out) > d.policy.MaxPerAnalysis {
		out = out[:d.policy.MaxPerAnalysis]
	}
	return out
}

// Dispatch publishes the selected findings for key and returns the events sent.
func (d *AlertDispatcher) Dispatch(ctx context.Context, key models.SeriesKey, source string, findings []models.AnomalyFinding) []*models.AlertEvent {
	selected := d.Select(findings)
	if len(selected) == 0 {
		return nil
	}

	created := d.now().UTC()
	events := make([]*models.AlertEvent, 0, len(selected))
	for _, f := range selected {
		events = append(events, &models.AlertEvent{
			ID:        uuid.NewString(),
			Metric:    key.Metric,
			Entity:    key.Entity,
			Source:    source,
			CreatedAt: created,
			Finding:   f,
		})
	}

	if d.pub != nil {
		if err := d.pub.PublishBatch(ctx, events); err != nil {
			d.metrics.RecordError("alert_publish")
			d.log.Error("publish alerts failed",
				applogger.String("series", key.String()),
				applogger.Int("count", len(events)),
				applogger.Error(err),
			)
		}
	}
	if d.hub != nil {
		for _, e := range events {
			if err := d.hub.Broadcast(e); err != nil {
				d.metrics.RecordError("alert_broadcast")
				d.log.Warn("broadcast alert failed", applogger.String("id", e.ID), applogger.Error(err))
			}
		}
	}

	d.log.Info("alerts dispatched",
		applogger.String("series", key.String()),
		applogger.String("source", source),
		applogger.Int("count", len(events)),
	)
	return events
}
