package alertstream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SalesPulse/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.ServeWS(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub(nil, 4)
	srv := newTestServer(t, h)
	conn := dial(t, srv, "")

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	event := &models.AlertEvent{ID: "a1", Metric: "sales", Entity: "store-1", Source: "series"}
	require.NoError(t, h.Broadcast(event))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got models.AlertEvent
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "a1", got.ID)
	assert.Equal(t, "store-1", got.Entity)
}

func TestHubFilter(t *testing.T) {
	h := NewHub(nil, 4)
	srv := newTestServer(t, h)
	conn := dial(t, srv, "?entity=store-2")

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Broadcast(&models.AlertEvent{ID: "skip", Metric: "sales", Entity: "store-1"}))
	require.NoError(t, h.Broadcast(&models.AlertEvent{ID: "keep", Metric: "sales", Entity: "store-2"}))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"id":"keep"`)
}

func TestHubDropsSlowClient(t *testing.T) {
	h := NewHub(nil, 1)
	c := &client{hub: h, send: make(chan []byte, 1)}
	require.True(t, h.add(c))

	e := &models.AlertEvent{ID: "x"}
	require.NoError(t, h.Broadcast(e))
	assert.Equal(t, 1, h.ClientCount())

	require.NoError(t, h.Broadcast(e))
	assert.Equal(t, 0, h.ClientCount())

	_, ok := <-c.send
	assert.True(t, ok)
	_, ok = <-c.send
	assert.False(t, ok, "send channel closed after drop")
}

func TestHubClose(t *testing.T) {
	h := NewHub(nil, 1)
	c := &client{hub: h, send: make(chan []byte, 1)}
	require.True(t, h.add(c))

	h.Close()
	assert.Equal(t, 0, h.ClientCount())
	assert.False(t, h.add(&client{hub: h, send: make(chan []byte, 1)}))
}
