// Command detect runs the anomaly detector over a JSON series read from a
// file or stdin and prints the result as JSON.
//
//	detect -input series.json
//	cat series.json | detect -detector sudden -window 7
//	detect -detector baseline -current 140 < baseline.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"SalesPulse/internal/domain/models"
	"SalesPulse/internal/services/analytics"
	"SalesPulse/pkg/config"
	xhttp "SalesPulse/pkg/http"
	applogger "SalesPulse/pkg/logger"
)

func main() {
	input := flag.String("input", "-", "series file, - for stdin")
	detector := flag.String("detector", "analyze", "analyze|zscore|iqr|sudden|trend|baseline")
	window := flag.Int("window", 3, "sudden-change window size")
	minPeriods := flag.Int("min-periods", 5, "trend-break minimum half length")
	current := flag.Float64("current", 0, "current value for -detector baseline")
	z := flag.Float64("z", 0, "z-score threshold override")
	flag.Parse()

	l := applogger.NewWriter(os.Stderr, "info")

	out, err := run(*input, *detector, *window, *minPeriods, *current, *z)
	if err != nil {
		l.Error("detect failed", applogger.String("detector", *detector), applogger.Error(err))
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		l.Error("encode result", applogger.Error(err))
		os.Exit(1)
	}
}

func run(input, detector string, window, minPeriods int, current, z float64) (interface{}, error) {
	req, err := readSeries(input)
	if err != nil {
		return nil, err
	}

	dc := config.Default().Detector
	th := models.DetectorThresholds{
		ZThreshold:           dc.ZThreshold,
		IQRMultiplier:        dc.IQRMultiplier,
		ChangeThreshold:      dc.ChangeThresholdPct / 100,
		OpportunityThreshold: dc.OpportunityThresholdPct / 100,
		AnomalyRateThreshold: dc.AnomalyRateThresholdPct / 100,
	}
	if z > 0 {
		th.ZThreshold = z
	}
	d := analytics.NewAnomalyDetector(th)

	switch strings.ToLower(detector) {
	case "analyze":
		return d.AnalyzeSeries(req.Values, req.Timestamps)
	case "zscore":
		return d.DetectOutliersZScore(req.Values, req.Timestamps), nil
	case "iqr":
		return d.DetectOutliersIQR(req.Values, req.Timestamps), nil
	case "sudden":
		return d.DetectSuddenChanges(req.Values, req.Timestamps, window), nil
	case "trend":
		return d.DetectTrendBreak(req.Values, req.Timestamps, minPeriods), nil
	case "baseline":
		return d.CompareWithBaseline(current, req.Values), nil
	default:
		return nil, fmt.Errorf("unknown detector %q", detector)
	}
}

func readSeries(input string) (*models.SeriesRequest, error) {
	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var req models.SeriesRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}
	if err := xhttp.ValidateStruct(&req); err != nil {
		return nil, fmt.Errorf("invalid series: %w", err)
	}
	return &req, nil
}
