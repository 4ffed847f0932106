package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Polqt/ratelimitgw/circuit"
	"github.com/Polqt/ratelimitgw/config"
	"github.com/Polqt/ratelimitgw/metrics"
	"github.com/Polqt/ratelimitgw/ratelimit"
	"github.com/Polqt/ratelimitgw/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminTestGateway(t *testing.T) *Gateway {
	t.Helper()
	cfg := &config.Config{
		Host:                    "127.0.0.1",
		RateLimits:              ratelimit.DefaultTierConfigs(),
		EndpointCosts:           router.DefaultEndpointConfigs(),
		UpstreamServices:        map[string]router.UpstreamServiceConfig{},
		ClientIDHeader:          "X-API-Key",
		FallbackToIP:            true,
		MetricsRetentionSeconds: 3600,
	}
	gw, err := New(cfg)
	require.NoError(t, err)
	gw.Start()
	t.Cleanup(gw.Stop)
	return gw
}

func TestHandleHealthReportsUptimeAndServices(t *testing.T) {
	gw := newAdminTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	gw.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.GreaterOrEqual(t, body.UptimeSeconds, 0.0)
}

func TestHandleReady(t *testing.T) {
	gw := newAdminTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	gw.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMetricsIncludesCircuitBreakerStates(t *testing.T) {
	gw := newAdminTestGateway(t)
	gw.Breakers.GetOrCreate("default", circuit.Config{FailureThreshold: 3, RecoveryTimeoutSeconds: 30, HalfOpenRequests: 2})

	gw.Metrics.Record(metrics.RequestMetric{Timestamp: time.Now(), ClientID: "a", Path: "/api/v1/x", Method: "GET", StatusCode: 200, LatencyMS: 12})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	gw.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.TotalRequests)
	assert.Equal(t, "closed", snap.CircuitBreakerStates["default"])
}

func TestHandleMetricsLatencyWindow(t *testing.T) {
	gw := newAdminTestGateway(t)
	gw.Metrics.Record(metrics.RequestMetric{ClientID: "a", LatencyMS: 10})
	gw.Metrics.Record(metrics.RequestMetric{ClientID: "a", LatencyMS: 20})

	req := httptest.NewRequest(http.MethodGet, "/metrics/latency?window_seconds=60", nil)
	rec := httptest.NewRecorder()
	gw.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "p99_ms")
}

func TestHandleClientMetrics(t *testing.T) {
	gw := newAdminTestGateway(t)
	gw.Metrics.Record(metrics.RequestMetric{Timestamp: time.Now(), ClientID: "client-x", LatencyMS: 5, StatusCode: 200})

	req := httptest.NewRequest(http.MethodGet, "/metrics/client/client-x", nil)
	rec := httptest.NewRecorder()
	gw.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body metrics.ClientMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "client-x", body.ClientID)
	assert.Equal(t, 1, body.TotalRequests)
}

func TestHandleCircuitBreakersAndReset(t *testing.T) {
	gw := newAdminTestGateway(t)
	b := gw.Breakers.GetOrCreate("svc", circuit.Config{FailureThreshold: 1, RecoveryTimeoutSeconds: 30, HalfOpenRequests: 1})
	b.RecordFailure()
	require.Equal(t, circuit.Open, b.State())

	req := httptest.NewRequest(http.MethodGet, "/circuit-breakers", nil)
	rec := httptest.NewRecorder()
	gw.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var statuses map[string]circuit.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	assert.Equal(t, circuit.Open, statuses["svc"].State)

	resetReq := httptest.NewRequest(http.MethodPost, "/circuit-breakers/reset", nil)
	resetRec := httptest.NewRecorder()
	gw.mux.ServeHTTP(resetRec, resetReq)
	assert.Equal(t, http.StatusOK, resetRec.Code)
	assert.Equal(t, circuit.Closed, b.State())
}

func TestHandleRateLimitStatusAndReset(t *testing.T) {
	gw := newAdminTestGateway(t)
	gw.Limiter.Check("client-z", ratelimit.TierFree, 3)

	req := httptest.NewRequest(http.MethodGet, "/rate-limits/status/client-z", nil)
	rec := httptest.NewRecorder()
	gw.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var status ratelimit.ClientStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "client-z", status.ClientID)
	assert.InDelta(t, 7.0, status.AvailableTokens, 0.01)

	resetReq := httptest.NewRequest(http.MethodPost, "/rate-limits/reset/client-z", nil)
	resetRec := httptest.NewRecorder()
	gw.mux.ServeHTTP(resetRec, resetReq)
	assert.Equal(t, http.StatusOK, resetRec.Code)

	status2, _ := gw.Limiter.Status("client-z")
	assert.Equal(t, float64(10), status2.AvailableTokens)
}

func TestHandleRateLimitStatusUnknownClientIs404(t *testing.T) {
	gw := newAdminTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/rate-limits/status/nobody", nil)
	rec := httptest.NewRecorder()
	gw.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSetClientTierAndList(t *testing.T) {
	gw := newAdminTestGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/clients/client-q/tier?tier=premium", nil)
	rec := httptest.NewRecorder()
	gw.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, ratelimit.TierPremium, gw.Tiers.Get("client-q"))

	listReq := httptest.NewRequest(http.MethodGet, "/clients", nil)
	listRec := httptest.NewRecorder()
	gw.mux.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)
	var clients map[string]ratelimit.Tier
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &clients))
	assert.Equal(t, ratelimit.TierPremium, clients["client-q"])
}

func TestHandleSetClientTierMissingTierIsBadRequest(t *testing.T) {
	gw := newAdminTestGateway(t)
	req := httptest.NewRequest(http.MethodPost, "/clients/client-q/tier", nil)
	rec := httptest.NewRecorder()
	gw.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
