package models

import "time"

// Requests for anomaly HTTP endpoints. Defined in domain for reuse by jobs and the CLI.

type SeriesRequest struct {
	Values     []float64   `json:"values" validate:"required,max=100000"`
	Timestamps []time.Time `json:"timestamps"`
}

type SuddenChangeRequest struct {
	Values     []float64   `json:"values" validate:"required,max=100000"`
	Timestamps []time.Time `json:"timestamps"`
	WindowSize int         `json:"window_size" default:"3" validate:"gte=1,lte=365"`
}

type TrendBreakRequest struct {
	Values     []float64   `json:"values" validate:"required,max=100000"`
	Timestamps []time.Time `json:"timestamps"`
	MinPeriods int         `json:"min_periods" default:"5" validate:"gte=1,lte=1000"`
}

type BaselineRequest struct {
	CurrentValue   float64   `json:"current_value"`
	BaselineValues []float64 `json:"baseline_values" validate:"required"`
}

type ThresholdsRequest struct {
	RiskThresholdPct        *float64 `json:"risk_threshold_pct" validate:"omitempty,gte=0,lte=100"`
	OpportunityThresholdPct *float64 `json:"opportunity_threshold_pct" validate:"omitempty,gte=0,lte=1000"`
	ZThreshold              *float64 `json:"z_threshold" validate:"omitempty,gt=0,lte=20"`
}

type StoredSeriesRequest struct {
	Metric      string `query:"metric" json:"metric" validate:"required"`
	Entity      string `query:"entity" json:"entity" validate:"required"`
	From        string `query:"from" json:"from"`
	To          string `query:"to" json:"to"`
	Granularity string `query:"granularity" json:"granularity" default:"day" validate:"oneof=raw day week month"`
}

type ForecastRequest struct {
	Metric  string `json:"metric" validate:"required"`
	Entity  string `json:"entity" validate:"required"`
	Model   string `json:"model" default:"linear" validate:"oneof=linear arima sarima random_forest xgboost"`
	History int    `json:"history" default:"90" validate:"gte=3,lte=5000"`
	Horizon int    `json:"horizon" default:"30" validate:"gte=3,lte=365"`
}

type AnalysisJobRequest struct {
	Metric      string `json:"metric" validate:"required"`
	Entity      string `json:"entity" validate:"required"`
	From        string `json:"from"`
	To          string `json:"to"`
	Granularity string `json:"granularity" default:"day" validate:"oneof=raw day week month"`
}
