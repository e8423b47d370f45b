package models

import (
	"fmt"
	"strings"
	"time"
)

// AnomalyKind classifies what a detector found.
type AnomalyKind string

const (
	KindOutlier              AnomalyKind = "outlier"
	KindTrendBreak           AnomalyKind = "trend_break"
	KindSeasonalityDeviation AnomalyKind = "seasonality_deviation" // reserved, never produced
	KindSuddenChange         AnomalyKind = "sudden_change"
	KindMissingData          AnomalyKind = "missing_data" // reserved, never produced
)

// Severity is an ordered tier; higher values are more severe.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < SeverityLow || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity accepts the lowercase tier names.
func ParseSeverity(s string) (Severity, error) {
	for i, name := range severityNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Severity(i), nil
		}
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Signal tells the alerting side which business rule a sudden change hit.
type Signal string

const (
	SignalRisk        Signal = "risk"
	SignalOpportunity Signal = "opportunity"
)

// AnomalyFinding is one detector result.
// Kind, Index and Timestamp are nil when not applicable.
type AnomalyFinding struct {
	IsAnomaly     bool         `json:"is_anomaly"`
	Kind          *AnomalyKind `json:"anomaly_kind"`
	Severity      Severity     `json:"severity"`
	Value         float64      `json:"value"`
	ExpectedValue float64      `json:"expected_value"`
	Deviation     float64      `json:"deviation"`
	Score         float64      `json:"score"`
	Confidence    float64      `json:"confidence"`
	Description   string       `json:"description"`
	Index         *int         `json:"index,omitempty"`
	Timestamp     *time.Time   `json:"timestamp,omitempty"`
	Signal        Signal       `json:"signal,omitempty"`
}

// KindOrEmpty returns the kind or "" for non-anomalous results.
func (f AnomalyFinding) KindOrEmpty() AnomalyKind {
	if f.Kind == nil {
		return ""
	}
	return *f.Kind
}

// SeriesStatistics are descriptive stats of the raw input.
type SeriesStatistics struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

type KindBreakdown struct {
	Outliers      int `json:"outliers"`
	SuddenChanges int `json:"sudden_changes"`
	TrendBreaks   int `json:"trend_breaks"`
}

// SeverityBreakdown merges High and Critical into High.
type SeverityBreakdown struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

type AnomalySummary struct {
	ByType     KindBreakdown     `json:"by_type"`
	BySeverity SeverityBreakdown `json:"by_severity"`
}

// AnalysisReport is the aggregate result of a full-series analysis.
type AnalysisReport struct {
	Statistics           SeriesStatistics `json:"statistics"`
	TotalAnomalies       int              `json:"total_anomalies"`
	AnomalyRate          float64          `json:"anomaly_rate"`
	HighAnomalyRateAlert bool             `json:"high_anomaly_rate_alert"`
	Anomalies            []AnomalyFinding `json:"anomalies"`
	Summary              AnomalySummary   `json:"summary"`
}
