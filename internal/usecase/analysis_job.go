package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SalesPulse/internal/domain/models"
	drepo "SalesPulse/internal/domain/repository"
	"SalesPulse/internal/services/analytics"
	applogger "SalesPulse/pkg/logger"
	"SalesPulse/pkg/queue"
	xutil "SalesPulse/pkg/util"
)

// AnalyzeJobType is the queue message type of asynchronous analyses.
const AnalyzeJobType = "series.analyze"

// defaultJobLookback is used when a job carries no from.
const defaultJobLookback = 90 * 24 * time.Hour

// AnalysisJob runs stored-series analyses from the job queue.
type AnalysisJob struct {
	uc  *SeriesAnalysisUseCase
	log *applogger.Logger
	now func() time.Time
}

func NewAnalysisJob(uc *SeriesAnalysisUseCase, l *applogger.Logger) *AnalysisJob {
	return &AnalysisJob{uc: uc, log: l, now: time.Now}
}

func (j *AnalysisJob) Name() string { return "series-analysis" }

func (j *AnalysisJob) Type() string { return AnalyzeJobType }

// Handle runs one analysis. Payload errors and short series are not retried.
func (j *AnalysisJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.Decode[models.AnalysisJobRequest](payload)
	if err != nil {
		j.log.Error("invalid analysis job payload", applogger.Error(err))
		return nil
	}
	if req.Metric == "" || req.Entity == "" {
		j.log.Error("analysis job missing series", applogger.String("metric", req.Metric), applogger.String("entity", req.Entity))
		return nil
	}

	key := models.SeriesKey{Metric: req.Metric, Entity: req.Entity}
	to := xutil.ParseTimeDefault(req.To, j.now())
	from := xutil.ParseTimeDefault(req.From, to.Add(-defaultJobLookback))
	g := drepo.NormalizeGranularity(req.Granularity)

	res, err := j.uc.AnalyzeStored(ctx, key, from, to, g)
	switch {
	case errors.Is(err, analytics.ErrInsufficientData), errors.Is(err, ErrInvalidRange):
		j.log.Warn("analysis job skipped", applogger.String("series", key.String()), applogger.Error(err))
		return nil
	case err != nil:
		return fmt.Errorf("analysis job %s: %w", key, err)
	}

	j.log.Info("analysis job done",
		applogger.String("series", key.String()),
		applogger.Int("points", res.Points),
		applogger.Int("anomalies", res.Report.TotalAnomalies),
		applogger.Int("alerts", res.AlertsDispatched),
	)
	return nil
}

// EnqueueAnalysis schedules req on pub and returns the message id.
func EnqueueAnalysis(ctx context.Context, pub queue.Publisher, req *models.AnalysisJobRequest) (string, error) {
	if pub == nil {
		return "", queue.ErrNotRunning
	}
	id, err := pub.Enqueue(ctx, AnalyzeJobType, req)
	if err != nil {
		return "", fmt.Errorf("enqueue analysis: %w", err)
	}
	return id, nil
}
