package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Priya8975/traffic-tracker/internal/domain"
	ws "github.com/Priya8975/traffic-tracker/internal/websocket"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, store *memStore, redis Pinger) (*httptest.Server, *ws.Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := ws.NewHub(testLogger())
	go hub.Run(ctx)

	router := NewRouter(Deps{
		Store:     store,
		Geo:       &staticGeo{data: domain.GeoData{Country: domain.StringPtr("Germany")}},
		Validator: newTestValidator(store),
		Hub:       hub,
		Redis:     redis,
		Logger:    testLogger(),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, hub
}

func TestRouter_IngestBroadcastsToWebsocket(t *testing.T) {
	server, hub := newTestServer(t, &memStore{}, nil)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/tracking"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/event", strings.NewReader(`{"channel":"google_ads"}`))
	require.NoError(t, err)
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type      string                 `json:"type"`
		Namespace string                 `json:"namespace"`
		Data      map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "new_event", msg.Type)
	assert.Equal(t, "/tracking", msg.Namespace)
	assert.Equal(t, "203.0.113.50", msg.Data["ip_address"])
	assert.Equal(t, true, msg.Data["is_valid_click"])
	assert.NotContains(t, msg.Data, "raw_request_data")
}

func TestRouter_Routes(t *testing.T) {
	server, _ := newTestServer(t, seededStore(), nil)

	tests := []struct {
		path string
		want int
	}{
		{"/api/logs", http.StatusOK},
		{"/api/logs/1", http.StatusOK},
		{"/api/metrics", http.StatusOK},
		{"/api/export?format=csv", http.StatusOK},
		{"/api/health", http.StatusOK},
		{"/ping", http.StatusOK},
		{"/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(server.URL + tt.path)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRouter_PrometheusEndpoint(t *testing.T) {
	server, _ := newTestServer(t, seededStore(), nil)

	resp, err := http.Get(server.URL + "/api/metrics")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `traffic_http_requests_total{method="GET",route="/api/metrics",status="200"}`)
}

func TestHealth(t *testing.T) {
	t.Run("all up", func(t *testing.T) {
		server, _ := newTestServer(t, &memStore{}, pingerFunc(func(ctx context.Context) error { return nil }))

		resp, err := http.Get(server.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "up", body.Dependencies["postgres"])
		assert.Equal(t, "up", body.Dependencies["redis"])
	})

	t.Run("redis disabled", func(t *testing.T) {
		server, _ := newTestServer(t, &memStore{}, nil)

		resp, err := http.Get(server.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "disabled", body.Dependencies["redis"])
	})

	t.Run("postgres down", func(t *testing.T) {
		server, _ := newTestServer(t, &memStore{err: errStoreDown}, nil)

		resp, err := http.Get(server.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "degraded", body.Status)
		assert.Equal(t, "down", body.Dependencies["postgres"])
	})

	t.Run("redis down", func(t *testing.T) {
		server, _ := newTestServer(t, &memStore{}, pingerFunc(func(ctx context.Context) error { return errors.New("timeout") }))

		resp, err := http.Get(server.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "degraded", body.Status)
	})
}
