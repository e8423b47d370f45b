package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllow(t *testing.T) {
	clock := time.Unix(0, 0)
	l := New(2, 2)
	l.now = func() time.Time { return clock }

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, wait := l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, 500*time.Millisecond, wait)

	ok, _ = l.Allow("b")
	assert.True(t, ok, "keys are independent")

	clock = clock.Add(500 * time.Millisecond)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
}

func TestLimiterEvictsIdle(t *testing.T) {
	clock := time.Unix(0, 0)
	l := New(1, 1)
	l.now = func() time.Time { return clock }
	l.Allow("old")

	clock = clock.Add(time.Hour)
	l.evict(clock)
	assert.Equal(t, 0, l.Len())
}

func TestMiddleware(t *testing.T) {
	e := echo.New()
	l := New(0, 1)
	e.Use(l.Middleware("/healthz"))
	e.GET("/api/anomaly/thresholds", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, do("/api/anomaly/thresholds").Code)
	rec := do("/api/anomaly/thresholds")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "ERR_RATE_LIMITED")

	assert.Equal(t, http.StatusOK, do("/healthz").Code)
}
