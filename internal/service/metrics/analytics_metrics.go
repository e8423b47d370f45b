package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	EndpointLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "salespulse",
			Subsystem: "anomaly_api",
			Name:      "latency_seconds",
			Help:      "Latency of anomaly API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	EndpointErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salespulse",
			Subsystem: "anomaly_api",
			Name:      "errors_total",
			Help:      "Errors by anomaly API endpoint and code",
		},
		[]string{"endpoint", "code"},
	)
)

// Register adds the endpoint collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(EndpointLatency, EndpointErrors)
	})
}

// Observe returns a func that records the latency of endpoint when called.
func Observe(endpoint string) func() {
	start := time.Now()
	return func() {
		EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

// Fail counts an error response for endpoint.
func Fail(endpoint, code string) {
	EndpointErrors.WithLabelValues(endpoint, code).Inc()
}
