package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SalesPulse/internal/domain/models"
	drepo "SalesPulse/internal/domain/repository"
	dsvc "SalesPulse/internal/domain/service"
	"SalesPulse/internal/middleware"
	"SalesPulse/internal/services/features"
	applogger "SalesPulse/pkg/logger"
)

// BaselineChecker compares each new observation with the latest stored
// points of its series, stores it, and alerts on anomalies.
type BaselineChecker struct {
	detector dsvc.AnomalyDetector
	store    drepo.SeriesStore
	alerts   *AlertDispatcher
	metrics  drepo.Metrics
	log      *applogger.Logger
	window   int
}

// NewBaselineChecker creates a checker using the last window points as baseline.
func NewBaselineChecker(detector dsvc.AnomalyDetector, store drepo.SeriesStore, alerts *AlertDispatcher, metrics drepo.Metrics, l *applogger.Logger, window int) *BaselineChecker {
	if window < 2 {
		window = 30
	}
	return &BaselineChecker{
		detector: detector,
		store:    store,
		alerts:   alerts,
		metrics:  metrics,
		log:      l,
		window:   window,
	}
}

// Process implements middleware.Proc.
func (b *BaselineChecker) Process(ctx context.Context, o *models.Observation) error {
	key := o.Key()
	history, err := b.store.GetLatestN(ctx, key, b.window)
	if err != nil {
		b.metrics.RecordError("store_latest")
		return fmt.Errorf("load baseline %s: %w", key, err)
	}

	b.metrics.RecordAnalysis("observation", len(history))
	finding := b.detector.CompareWithBaseline(o.V, features.Values(history))

	if err := b.store.Append(ctx, o); err != nil {
		b.metrics.RecordError("store_append")
		return fmt.Errorf("append %s: %w", key, err)
	}

	if !finding.IsAnomaly {
		return nil
	}
	at := o.Time()
	finding.Timestamp = &at
	b.metrics.RecordFinding(finding.KindOrEmpty(), finding.Severity)
	if b.alerts != nil {
		b.alerts.Dispatch(ctx, key, "observation", []models.AnomalyFinding{finding})
	}
	return nil
}

// ObservationHandler consumes the observations topic.
// Message schema: {metric, entity, t, v}, t in unix seconds or milliseconds.
type ObservationHandler struct {
	topic    string
	pipeline middleware.Proc
	metrics  drepo.Metrics
	log      *applogger.Logger
}

func NewObservationHandler(topic string, pipeline middleware.Proc, metrics drepo.Metrics, l *applogger.Logger) *ObservationHandler {
	return &ObservationHandler{topic: topic, pipeline: pipeline, metrics: metrics, log: l}
}

func (h *ObservationHandler) Topic() string { return h.topic }

// Handle decodes one message. Buffered downstream failures are acknowledged
// since the pipeline retries them; everything else is returned so the
// consumer can retry or dead-letter it.
func (h *ObservationHandler) Handle(ctx context.Context, b []byte) error {
	var o models.Observation
	if err := json.Unmarshal(b, &o); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode observation: %w", err)
	}
	if o.T > 0 {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(o.Time()).Seconds())
	}

	err := h.pipeline.Process(ctx, &o)
	if errors.Is(err, middleware.ErrBuffered) {
		h.log.Warn("observation buffered", applogger.String("series", o.Key().String()), applogger.Error(err))
		return nil
	}
	return err
}
