package models

// DetectorThresholds holds the detector configuration in internal units
// (fractions for percentage thresholds).
type DetectorThresholds struct {
	ZThreshold           float64 `json:"z_threshold"`
	IQRMultiplier        float64 `json:"iqr_multiplier"`
	ChangeThreshold      float64 `json:"change_threshold"`
	OpportunityThreshold float64 `json:"opportunity_threshold"`
	AnomalyRateThreshold float64 `json:"anomaly_rate_threshold"`
}

// DefaultThresholds returns the stock configuration.
func DefaultThresholds() DetectorThresholds {
	return DetectorThresholds{
		ZThreshold:           2.5,
		IQRMultiplier:        1.5,
		ChangeThreshold:      0.15,
		OpportunityThreshold: 0.20,
		AnomalyRateThreshold: 0.05,
	}
}

// ThresholdView is the externally reported form; percentage thresholds are x100.
type ThresholdView struct {
	ZThreshold              float64 `json:"z_threshold"`
	IQRMultiplier           float64 `json:"iqr_multiplier"`
	ChangeThresholdPct      float64 `json:"change_threshold_pct"`
	OpportunityThresholdPct float64 `json:"opportunity_threshold_pct"`
	AnomalyRateThresholdPct float64 `json:"anomaly_rate_threshold_pct"`
}

// ThresholdUpdate carries optional changes. RiskThresholdPct and
// OpportunityThresholdPct are whole-number percentages; ZThreshold is raw.
type ThresholdUpdate struct {
	RiskThresholdPct        *float64 `json:"risk_threshold_pct,omitempty"`
	OpportunityThresholdPct *float64 `json:"opportunity_threshold_pct,omitempty"`
	ZThreshold              *float64 `json:"z_threshold,omitempty"`
}

// IsEmpty reports whether no field is set.
func (u ThresholdUpdate) IsEmpty() bool {
	return u.RiskThresholdPct == nil && u.OpportunityThresholdPct == nil && u.ZThreshold == nil
}
