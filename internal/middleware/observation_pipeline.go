package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"SalesPulse/internal/domain/models"
	domrepo "SalesPulse/internal/domain/repository"
)

// Proc is the downstream step fed by the pipeline.
type Proc interface {
	Process(ctx context.Context, o *models.Observation) error
}

var (
	// ErrInvalidObservation wraps validation failures.
	ErrInvalidObservation = errors.New("invalid observation")
	// ErrBuffered marks a downstream failure whose observation was kept for retry.
	ErrBuffered = errors.New("observation buffered for retry")
)

// ObservationPipeline sits between the observations topic and the baseline
// check. It validates, optionally transforms, throttles per series and
// buffers observations while downstream is failing.
type ObservationPipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	maxRPS    int
	bufSize   int
	bufCh     chan *models.Observation
	stopCh    chan struct{}
	started   bool
	mu        sync.Mutex
	lastSeen  map[models.SeriesKey]time.Time
	calls     int
	transform func(*models.Observation) *models.Observation
	now       func() time.Time
}

type PipelineOption func(*ObservationPipeline)

// WithMaxRPS sets the max observations per second per series; 0 disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *ObservationPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size used while downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *ObservationPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a hook applied after validation, e.g. unit conversion.
func WithTransform(fn func(*models.Observation) *models.Observation) PipelineOption {
	return func(p *ObservationPipeline) { p.transform = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *ObservationPipeline) { p.now = now }
}

// NewObservationPipeline creates a new pipeline.
func NewObservationPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *ObservationPipeline {
	p := &ObservationPipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   50,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[models.SeriesKey]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Observation, p.bufSize)
	return p
}

// Start launches background retry of buffered observations.
func (p *ObservationPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.drain(ctx)
}

func (p *ObservationPipeline) drain(ctx context.Context) {
	const minBackoff = 50 * time.Millisecond
	backoff := minBackoff
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case o := <-p.bufCh:
			if err := p.proc.Process(ctx, o); err == nil {
				backoff = minBackoff
				continue
			}
			p.metrics.RecordError("pipeline_flush")
			if backoff < 2*time.Second {
				backoff *= 2
			}
			select {
			case <-time.After(backoff):
			case <-p.stopCh:
				return
			}
			select {
			case p.bufCh <- o:
			default:
				p.metrics.RecordError("pipeline_buffer_drop")
			}
		}
	}
}

// Stop stops the background retry loop.
func (p *ObservationPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// Buffered returns how many observations wait for retry.
func (p *ObservationPipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles and forwards o. Throttled observations are
// dropped without error. A downstream failure buffers o and returns an error
// wrapping ErrBuffered, or the bare failure when the buffer is full.
func (p *ObservationPipeline) Process(ctx context.Context, o *models.Observation) error {
	start := p.now()
	if err := ValidateObservation(o); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		o = p.transform(o)
		if err := ValidateObservation(o); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(o.Key(), start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, o); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- o:
			return fmt.Errorf("%w: %v", ErrBuffered, err)
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	return nil
}

// ValidateObservation checks metric/entity, value finiteness and timestamp.
func ValidateObservation(o *models.Observation) error {
	switch {
	case o == nil:
		return fmt.Errorf("%w: nil", ErrInvalidObservation)
	case o.Metric == "":
		return fmt.Errorf("%w: metric empty", ErrInvalidObservation)
	case o.Entity == "":
		return fmt.Errorf("%w: entity empty", ErrInvalidObservation)
	case o.T <= 0:
		return fmt.Errorf("%w: timestamp invalid", ErrInvalidObservation)
	case math.IsNaN(o.V) || math.IsInf(o.V, 0):
		return fmt.Errorf("%w: value not finite", ErrInvalidObservation)
	}
	return nil
}

func (p *ObservationPipeline) allow(key models.SeriesKey, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.calls%1024 == 0 {
		p.evict(now)
	}

	last, ok := p.lastSeen[key]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[key] = now
	return true
}

// evict drops series not seen within the last second. The throttle interval
// never exceeds one second, so such entries cannot block anything.
func (p *ObservationPipeline) evict(now time.Time) {
	for k, last := range p.lastSeen {
		if now.Sub(last) >= time.Second {
			delete(p.lastSeen, k)
		}
	}
}
