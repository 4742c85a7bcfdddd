package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zegonz1/housing-tbs/dataset"
	"github.com/zegonz1/housing-tbs/monitoring"
)

func newTestServer(t *testing.T, est *fakeEstimator) *httptest.Server {
	t.Helper()
	hub := monitoring.NewWebSocketHub(func(ctx context.Context, record dataset.Record) (any, error) {
		return est.Estimate(ctx, record)
	})
	go hub.Start()
	t.Cleanup(hub.Stop)

	config := DefaultServerConfig()
	config.RequestTimeout = time.Second
	server := NewServer(config, Services{Estimator: est, Hub: hub})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestServerMiddleware(t *testing.T) {
	ts := newTestServer(t, &fakeEstimator{fitted: true})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "http://example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestServerBodyLimit(t *testing.T) {
	est := &fakeEstimator{fitted: true}
	config := DefaultServerConfig()
	config.MaxBodyBytes = 16
	handler := NewServer(config, Services{Estimator: est}).Handler()

	w := serve(handler, http.MethodPost, "/api/estimate", "application/json", `{"LotArea": 7000, "Heating": "GasA"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServerWebSocket(t *testing.T) {
	ts := newTestServer(t, &fakeEstimator{fitted: true})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws/estimate"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(monitoring.ClientMessage{
		Type:   "estimate",
		ID:     "ws-1",
		Record: dataset.Record{"LotArea": dataset.Numeric(2000)},
	}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg monitoring.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, monitoring.EstimateResult, msg.Type)
	assert.Equal(t, "ws-1", msg.ID)
	var result map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &result))
	assert.Equal(t, "50,000 $", result["display"])
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := serve(handler, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestTimeoutMiddleware(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
			w.WriteHeader(http.StatusOK)
		}
	})
	handler := TimeoutMiddleware(20 * time.Millisecond)(slow)

	w := serve(handler, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "request timeout")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	assert.True(t, isWebSocketUpgrade(req))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	handler := Chain(mark("a"), mark("b"), mark("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	serve(handler, http.MethodGet, "/", "", "")
	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

func TestRequestIDReachesHandlers(t *testing.T) {
	var seen []string
	handler := Chain(LoggerMiddleware, RecoveryMiddleware)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, GetRequestID(r.Context()))
		if r.URL.Path == "/panic" {
			panic("boom")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-9")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	w = serve(handler, http.MethodGet, "/panic", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Len(t, seen, 2)
	assert.Equal(t, "req-9", seen[0])
	assert.NotEmpty(t, seen[1])
	assert.Equal(t, w.Header().Get("X-Request-ID"), seen[1])
	assert.Empty(t, GetRequestID(context.Background()))
}
