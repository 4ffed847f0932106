package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Polqt/ratelimitgw/metrics"
	"github.com/Polqt/ratelimitgw/router"
	"github.com/rs/zerolog/log"
)

// ServeHTTP dispatches one inbound request through the full pipeline:
// resolve client identity -> compute token cost -> charge bucket ->
// consult circuit -> proxy, recording exactly one metric per
// non-exempt response.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isExemptPath(r.URL.Path) {
		g.routeAdmin(w, r)
		return
	}

	start := time.Now()
	path := r.URL.Path
	method := r.Method
	clientID := g.clientID(r)
	cost := g.Router.TokenCost(path)
	tier := g.Tiers.Get(clientID)

	allowed, retryAfter, remaining := g.Limiter.Check(clientID, tier, cost)
	if !allowed {
		g.respondRateLimited(w, start, clientID, path, method, retryAfter, remaining)
		return
	}

	rw := &statusCapture{ResponseWriter: w, status: http.StatusOK}
	rw.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(remaining)))

	var service string
	if isAdminPath(path) {
		g.routeAdmin(rw, r)
	} else {
		service = g.proxy(rw, r)
	}
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}

	latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
	g.Metrics.Record(metrics.RequestMetric{
		Timestamp:   time.Now(),
		ClientID:    clientID,
		Path:        path,
		Method:      method,
		StatusCode:  rw.status,
		LatencyMS:   latencyMS,
		RateLimited: false,
		Service:     service,
	})

	logLevel := log.Info()
	if rw.status >= 500 {
		logLevel = log.Error()
	}
	logLevel.
		Str("client_id", clientID).
		Str("method", method).
		Str("path", path).
		Int("status", rw.status).
		Float64("latency_ms", latencyMS).
		Bool("rate_limited", false).
		Msg("request completed")
}

// routeAdmin dispatches a request to the admin handler mux. It serves
// both exempt paths (health/ready/metrics/_internal, called directly
// from ServeHTTP before any bucket check) and the rate-limited admin
// routes (circuit-breakers/rate-limits/clients, called after a bucket
// check passes).
func (g *Gateway) routeAdmin(w http.ResponseWriter, r *http.Request) {
	g.mux.ServeHTTP(w, r)
}

func (g *Gateway) clientID(r *http.Request) string {
	header := g.cfg.ClientIDHeader
	if header == "" {
		header = "X-API-Key"
	}
	if id := r.Header.Get(header); id != "" {
		return id
	}
	if g.cfg.FallbackToIP {
		if host := remoteHost(r); host != "" {
			return host
		}
	}
	return "anonymous"
}

func remoteHost(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

func (g *Gateway) respondRateLimited(w http.ResponseWriter, start time.Time, clientID, path, method string, retryAfter, remaining float64) {
	latencyMS := float64(time.Since(start).Microseconds()) / 1000.0

	g.Metrics.Record(metrics.RequestMetric{
		Timestamp:   time.Now(),
		ClientID:    clientID,
		Path:        path,
		Method:      method,
		StatusCode:  http.StatusTooManyRequests,
		LatencyMS:   latencyMS,
		RateLimited: true,
	})

	log.Warn().
		Str("client_id", clientID).
		Str("method", method).
		Str("path", path).
		Int("status", http.StatusTooManyRequests).
		Float64("latency_ms", latencyMS).
		Bool("rate_limited", true).
		Msg("request rate limited")

	body, _ := json.Marshal(rateLimitResponse{
		Error:           "rate limit exceeded",
		RetryAfter:      retryAfter,
		RemainingTokens: remaining,
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter)+1))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(math.Floor(remaining))))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(retryAfter*float64(time.Second))).Unix(), 10))
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write(body)
}

// proxy forwards a non-exempt request to its resolved upstream service
// and maps router errors to status codes per the error taxonomy. It
// returns the service name that handled the request, or "" if routing
// failed before a service was resolved.
func (g *Gateway) proxy(w http.ResponseWriter, r *http.Request) string {
	resp, err := g.Router.ProxyRequest(r, "")
	if err != nil {
		g.writeProxyError(w, r, err)
		var noRoute *router.ErrNoRoute
		if errors.As(err, &noRoute) {
			return ""
		}
		service, _ := g.Router.ResolveService(r.URL.Path)
		return service
	}
	defer resp.Body.Close()

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	copyBody(w, resp)

	service, _ := g.Router.ResolveService(r.URL.Path)
	return service
}

func (g *Gateway) writeProxyError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		noRoute     *router.ErrNoRoute
		circuitOpen *router.ErrCircuitOpen
		timeout     *router.ErrUpstreamTimeout
		connErr     *router.ErrUpstreamConnection
	)

	status := http.StatusInternalServerError
	body := map[string]string{"error": "internal error", "detail": err.Error()}

	switch {
	case errors.As(err, &circuitOpen):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "30")
		body = map[string]string{"error": "Service unavailable", "detail": err.Error()}
	case errors.As(err, &timeout):
		status = http.StatusGatewayTimeout
		body = map[string]string{"error": "Gateway timeout", "detail": err.Error()}
	case errors.As(err, &connErr):
		status = http.StatusBadGateway
		body = map[string]string{"error": "Bad gateway", "detail": err.Error()}
	case errors.As(err, &noRoute):
		status = http.StatusNotFound
		body = map[string]string{"error": "Not found", "detail": err.Error()}
	}

	log.Error().
		Str("client_id", g.clientID(r)).
		Str("path", r.URL.Path).
		Int("status", status).
		Err(err).
		Msg("request failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(body)
	w.Write(data)
}

// statusCapture wraps ResponseWriter to capture the status code for
// metrics/logging.
type statusCapture struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusCapture) WriteHeader(code int) {
	s.status = code
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(code)
}

func copyBody(w http.ResponseWriter, resp *http.Response) {
	io.Copy(w, resp.Body)
}
