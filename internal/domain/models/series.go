package models

import (
	"fmt"
	"time"
)

// SeriesKey identifies a stored business series, e.g. metric "sales" for entity "store-12".
type SeriesKey struct {
	Metric string `json:"metric"`
	Entity string `json:"entity"`
}

func (k SeriesKey) String() string { return fmt.Sprintf("%s:%s", k.Metric, k.Entity) }

// SeriesPoint is one value of a series at a bucket time.
type SeriesPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Observation is a freshly ingested data point. Wire schema: {metric, entity, t, v}
// where t is unix seconds (milliseconds are accepted and folded).
type Observation struct {
	Metric string  `json:"metric"`
	Entity string  `json:"entity"`
	T      int64   `json:"t"`
	V      float64 `json:"v"`
}

func (o *Observation) Key() SeriesKey { return SeriesKey{Metric: o.Metric, Entity: o.Entity} }

// Time returns the observation time, folding millisecond timestamps.
func (o *Observation) Time() time.Time {
	t := o.T
	if t > 1e11 {
		t = t / 1000
	}
	return time.Unix(t, 0).UTC()
}

// AlertEvent is what the alerting subsystem receives for each dispatched finding.
type AlertEvent struct {
	ID        string         `json:"id"`
	Metric    string         `json:"metric"`
	Entity    string         `json:"entity"`
	Source    string         `json:"source"` // "series", "observation", "forecast"
	CreatedAt time.Time      `json:"created_at"`
	Finding   AnomalyFinding `json:"finding"`
}

// SeriesReport is the analysis of a stored series over a range.
type SeriesReport struct {
	Series           SeriesKey       `json:"series"`
	Granularity      string          `json:"granularity"`
	From             time.Time       `json:"from"`
	To               time.Time       `json:"to"`
	Points           int             `json:"points"`
	Cached           bool            `json:"cached"`
	AlertsDispatched int             `json:"alerts_dispatched"`
	Report           *AnalysisReport `json:"report"`
}

// ForecastReport is the analysis of a projected series.
type ForecastReport struct {
	Series           SeriesKey       `json:"series"`
	Model            string          `json:"model"`
	History          int             `json:"history"`
	Forecast         []float64       `json:"forecast"`
	Timestamps       []time.Time     `json:"timestamps,omitempty"`
	AlertsDispatched int             `json:"alerts_dispatched"`
	Report           *AnalysisReport `json:"report"`
}
