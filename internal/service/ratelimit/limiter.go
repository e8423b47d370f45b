package ratelimit

import (
	"math"
	"strconv"
	"sync"
	"time"

	xhttp "SalesPulse/pkg/http"

	"github.com/labstack/echo/v4"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a keyed token bucket. Every key refills at rps up to burst.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*bucket
	rps   float64
	burst float64
	idle  time.Duration
	now   func() time.Time
	calls int
}

// New creates a limiter allowing rps sustained and burst peak requests per key.
func New(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		m:     make(map[string]*bucket),
		rps:   rps,
		burst: float64(burst),
		idle:  10 * time.Minute,
		now:   time.Now,
	}
}

// Allow reports whether one token could be consumed for key, and if not,
// how long until the next token is available.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%1024 == 0 {
		l.evict(now)
	}

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = math.Min(l.burst, b.tokens+elapsed*l.rps)
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.rps <= 0 {
		return false, time.Second
	}
	wait := time.Duration((1 - b.tokens) / l.rps * float64(time.Second))
	return false, wait
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// evict drops buckets untouched for longer than idle.
func (l *Limiter) evict(now time.Time) {
	for k, b := range l.m {
		if now.Sub(b.last) > l.idle {
			delete(l.m, k)
		}
	}
}

// Middleware limits requests per client IP. The stream and probe routes are exempt.
func (l *Limiter) Middleware(skip ...string) echo.MiddlewareFunc {
	exempt := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		exempt[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := exempt[c.Path()]; ok {
				return next(c)
			}
			ok, wait := l.Allow(c.RealIP())
			if !ok {
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
			}
			return next(c)
		}
	}
}
