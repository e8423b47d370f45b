package metrics

import (
	"testing"

	"SalesPulse/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordAnalysis("http", 12)
	r.RecordAnalysis("http", 30)
	r.RecordFinding(models.KindOutlier, models.SeverityHigh)
	r.RecordError("store")
	r.RecordLatency("analyze", 0.01)

	assert.Equal(t, 2.0, counterValue(t, reg, "salespulse_analyses_total", map[string]string{"source": "http"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "salespulse_findings_total", map[string]string{"kind": "outlier", "severity": "high"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "salespulse_errors_total", map[string]string{"type": "store"}))
}
