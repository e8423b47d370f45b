package metrics

import (
	"SalesPulse/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	analyses     *prometheus.CounterVec
	seriesPoints *prometheus.HistogramVec
	findings     *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New registers the collectors on reg, or the default registry when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		analyses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salespulse_analyses_total",
				Help: "Series analyses run, by source",
			},
			[]string{"source"},
		),
		seriesPoints: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "salespulse_series_points",
				Help:    "Length of analyzed series",
				Buckets: prometheus.ExponentialBuckets(4, 2, 10),
			},
			[]string{"source"},
		),
		findings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salespulse_findings_total",
				Help: "Anomaly findings by kind and severity",
			},
			[]string{"kind", "severity"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salespulse_errors_total",
				Help: "Errors encountered, by type",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "salespulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordAnalysis(source string, points int) {
	r.analyses.WithLabelValues(source).Inc()
	r.seriesPoints.WithLabelValues(source).Observe(float64(points))
}

func (r *Recorder) RecordFinding(kind models.AnomalyKind, sev models.Severity) {
	r.findings.WithLabelValues(string(kind), sev.String()).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordAnalysis(string, int) {}

func (Nop) RecordFinding(models.AnomalyKind, models.Severity) {}

func (Nop) RecordError(string) {}

func (Nop) RecordLatency(string, float64) {}
