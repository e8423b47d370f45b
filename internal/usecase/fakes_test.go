package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"SalesPulse/internal/domain/models"
	drepo "SalesPulse/internal/domain/repository"
)

var errBoom = errors.New("boom")

type fakeStore struct {
	mu       sync.Mutex
	points   []models.SeriesPoint
	latest   []models.SeriesPoint
	appended []*models.Observation
	getCalls int
	lastFrom time.Time
	lastTo   time.Time
	getErr   error
	appErr   error
}

func (s *fakeStore) GetSeries(_ context.Context, _ models.SeriesKey, from, to time.Time, _ drepo.Granularity) ([]models.SeriesPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	s.lastFrom, s.lastTo = from, to
	return s.points, s.getErr
}

func (s *fakeStore) GetLatestN(_ context.Context, _ models.SeriesKey, n int) ([]models.SeriesPoint, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if len(s.latest) > n {
		return s.latest[len(s.latest)-n:], nil
	}
	return s.latest, nil
}

func (s *fakeStore) Append(_ context.Context, o *models.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appErr != nil {
		return s.appErr
	}
	s.appended = append(s.appended, o)
	return nil
}

func (s *fakeStore) Health(context.Context) error { return nil }

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.AlertEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, e *models.AlertEvent) error {
	return p.PublishBatch(ctx, []*models.AlertEvent{e})
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []*models.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeHub struct {
	mu     sync.Mutex
	events []*models.AlertEvent
}

func (h *fakeHub) Broadcast(e *models.AlertEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return nil
}

type fakeForecaster struct {
	out       []float64
	err       error
	gotModel  string
	gotValues []float64
}

func (f *fakeForecaster) Forecast(_ context.Context, model string, history []float64, horizon int) ([]float64, error) {
	f.gotModel = model
	f.gotValues = history
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeThresholdStore struct {
	th      models.DetectorThresholds
	found   bool
	saved   []models.DetectorThresholds
	saveErr error
}

func (s *fakeThresholdStore) Load(context.Context) (models.DetectorThresholds, bool, error) {
	return s.th, s.found, nil
}

func (s *fakeThresholdStore) Save(_ context.Context, th models.DetectorThresholds) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, th)
	return nil
}

type fakeQueue struct {
	msgType string
	payload interface{}
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, payload interface{}) (string, error) {
	q.msgType = msgType
	q.payload = payload
	return "msg-1", nil
}

func daily(values ...float64) []models.SeriesPoint {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.SeriesPoint, len(values))
	for i, v := range values {
		out[i] = models.SeriesPoint{Time: t0.AddDate(0, 0, i), Value: v}
	}
	return out
}
