package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Polqt/ratelimitgw/ratelimit"
)

const defaultWindowSeconds = 300

// buildMux registers the admin surface and the proxy catch-all on a
// single router, used for both exempt and rate-limited dispatch.
func (g *Gateway) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /ready", g.handleReady)

	mux.HandleFunc("GET /metrics", g.handleMetrics)
	mux.HandleFunc("GET /metrics/latency", g.handleMetricsLatency)
	mux.HandleFunc("GET /metrics/client/{id}", g.handleClientMetrics)

	mux.HandleFunc("GET /circuit-breakers", g.handleCircuitBreakers)
	mux.HandleFunc("POST /circuit-breakers/reset", g.handleResetCircuitBreakers)

	mux.HandleFunc("GET /rate-limits/status/{id}", g.handleRateLimitStatus)
	mux.HandleFunc("POST /rate-limits/reset/{id}", g.handleRateLimitReset)

	mux.HandleFunc("GET /clients", g.handleListClients)
	mux.HandleFunc("POST /clients/{id}/tier", g.handleSetClientTier)

	return mux
}

// adminPrefixes names the admin routes that are still subject to rate
// limiting and metrics recording — unlike the exempt set in gateway.go,
// these are dispatched to the admin mux only after a bucket check
// passes, matching the reference gateway's global middleware ordering.
var adminPrefixes = []string{"/circuit-breakers", "/rate-limits", "/clients"}

func isAdminPath(path string) bool {
	for _, prefix := range adminPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func windowFromQuery(r *http.Request) time.Duration {
	seconds := defaultWindowSeconds
	if raw := r.URL.Query().Get("window_seconds"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			seconds = n
		}
	}
	return time.Duration(seconds) * time.Second
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]string)
	for name, healthy := range g.Health.Status() {
		if healthy {
			services[name] = "healthy"
		} else {
			services[name] = "unhealthy"
		}
	}

	writeJSON(w, http.StatusOK, healthStatus{
		Status:        "healthy",
		UptimeSeconds: g.Metrics.UptimeSeconds(),
		Services:      services,
	})
}

func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	window := windowFromQuery(r)
	snapshot := g.Metrics.Snapshot(window)

	states := make(map[string]string)
	for name, status := range g.Breakers.AllStatus() {
		states[name] = string(status.State)
	}
	snapshot.CircuitBreakerStates = states

	writeJSON(w, http.StatusOK, snapshot)
}

func (g *Gateway) handleMetricsLatency(w http.ResponseWriter, r *http.Request) {
	window := windowFromQuery(r)

	writeJSON(w, http.StatusOK, map[string]any{
		"p50_ms":         round2(g.Metrics.PercentileLatency(50, window)),
		"p90_ms":         round2(g.Metrics.PercentileLatency(90, window)),
		"p95_ms":         round2(g.Metrics.PercentileLatency(95, window)),
		"p99_ms":         round2(g.Metrics.PercentileLatency(99, window)),
		"window_seconds": int(window.Seconds()),
	})
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func (g *Gateway) handleClientMetrics(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("id")
	window := windowFromQuery(r)
	writeJSON(w, http.StatusOK, g.Metrics.ClientMetrics(clientID, window))
}

func (g *Gateway) handleCircuitBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.Breakers.AllStatus())
}

func (g *Gateway) handleResetCircuitBreakers(w http.ResponseWriter, r *http.Request) {
	g.Breakers.ResetAll()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "reset",
		"message": "All circuit breakers reset to closed state",
	})
}

func (g *Gateway) handleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("id")
	status, ok := g.Limiter.Status(clientID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Client not found"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (g *Gateway) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("id")
	if !g.Limiter.Reset(clientID) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Client not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "client_id": clientID})
}

func (g *Gateway) handleListClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.Tiers.List())
}

func (g *Gateway) handleSetClientTier(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("id")
	tier := ratelimit.Tier(r.URL.Query().Get("tier"))
	if tier == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing tier query parameter"})
		return
	}
	g.Tiers.Set(clientID, tier)
	writeJSON(w, http.StatusOK, map[string]string{"client_id": clientID, "tier": string(tier)})
}
