package router

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/Polqt/ratelimitgw/circuit"
	"github.com/rs/zerolog/log"
)

// hopByHop is the exact, case-insensitive set of headers that must
// never be forwarded across a proxy hop, plus Host which is stripped
// inbound only.
var hopByHop = map[string]struct{}{
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

func isHopByHop(header string) bool {
	_, ok := hopByHop[strings.ToLower(header)]
	return ok
}

// Router resolves a request path to an upstream service, gates the call
// through that service's circuit breaker, and proxies surviving
// traffic.
type Router struct {
	services  map[string]UpstreamServiceConfig
	endpoints []compiledEndpoint
	routes    []compiledRoute
	breakers  *circuit.Registry

	mu     sync.RWMutex
	client *http.Client
}

// New builds a router from upstream service configs and endpoint cost
// entries. No routing rules are derived from the service map: rules come
// only from AddRoute, and a path matching none of them resolves to the
// "default" service if one exists.
func New(services map[string]UpstreamServiceConfig, endpoints []EndpointConfig, breakers *circuit.Registry) (*Router, error) {
	r := &Router{
		services: services,
		breakers: breakers,
	}

	for _, e := range endpoints {
		pattern, err := regexp.Compile(e.PathPattern)
		if err != nil {
			return nil, err
		}
		r.endpoints = append(r.endpoints, compiledEndpoint{pattern: pattern, tokenCost: e.TokenCost})
	}

	return r, nil
}

// AddRoute adds an ordered routing rule: path regex -> service name.
// Earlier-added rules take priority; more specific patterns must
// precede more general ones.
func (r *Router) AddRoute(pattern, service string) error {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.routes = append(r.routes, compiledRoute{pattern: compiled, service: service})
	return nil
}

// Start initializes the shared upstream HTTP client.
func (r *Router) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.client = &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 64,
		},
	}
}

// Stop closes idle upstream connections.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		r.client.CloseIdleConnections()
		r.client = nil
	}
}

// TokenCost returns the cost of a path: the cost of the first matching
// endpoint entry, else 1. Matching is anchored at the start of path
// (a match counts only if it begins at index 0), never a search.
func (r *Router) TokenCost(path string) int {
	for _, e := range r.endpoints {
		if loc := e.pattern.FindStringIndex(path); loc != nil && loc[0] == 0 {
			return e.tokenCost
		}
	}
	return 1
}

// ResolveService returns the service name that should handle path, or
// ("", false) if nothing matches and no "default" service exists.
func (r *Router) ResolveService(path string) (string, bool) {
	for _, rt := range r.routes {
		if loc := rt.pattern.FindStringIndex(path); loc != nil && loc[0] == 0 {
			return rt.service, true
		}
	}
	if _, ok := r.services["default"]; ok {
		return "default", true
	}
	return "", false
}

// ProxyRequest proxies req to the resolved (or explicitly named)
// upstream service and returns the downstream response to write back.
func (r *Router) ProxyRequest(req *http.Request, serviceName string) (*http.Response, error) {
	r.mu.RLock()
	client := r.client
	r.mu.RUnlock()
	if client == nil {
		return nil, errors.New("router not started")
	}

	if serviceName == "" {
		resolved, ok := r.ResolveService(req.URL.Path)
		if !ok {
			return nil, &ErrNoRoute{Path: req.URL.Path}
		}
		serviceName = resolved
	}

	svc, ok := r.services[serviceName]
	if !ok {
		return nil, &ErrNoRoute{Path: req.URL.Path}
	}

	breaker := r.breakers.GetOrCreate(serviceName, svc.CircuitBreaker)

	canExecute, reason := breaker.CanExecute()
	if !canExecute {
		return nil, &ErrCircuitOpen{Reason: reason}
	}

	upstreamReq, err := buildUpstreamRequest(req, svc)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(req.Context(), svc.Timeout())
	defer cancel()
	upstreamReq = upstreamReq.WithContext(ctx)

	resp, err := client.Do(upstreamReq)
	if err != nil {
		breaker.RecordFailure()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ErrUpstreamTimeout{Service: serviceName}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &ErrUpstreamTimeout{Service: serviceName}
		}
		if isDialFailure(err) {
			return nil, &ErrUpstreamConnection{Service: serviceName}
		}
		return nil, &ErrUpstream{Service: serviceName, Err: err}
	}

	// A 5xx upstream response is a transport success for breaker
	// purposes — only transport-level errors count as failures.
	breaker.RecordSuccess()

	stripHopByHopResponse(resp)
	return resp, nil
}

// isDialFailure reports whether err is an actual failure to reach the
// upstream at all — DNS resolution, TCP dial, or TLS handshake — as
// opposed to any other error the HTTP client can return once a
// connection exists. Only this narrow bucket is classified as
// ErrUpstreamConnection; everything else falls through to ErrUpstream.
func isDialFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var certInvalidErr x509.CertificateInvalidError
	if errors.As(err, &certInvalidErr) {
		return true
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return true
	}
	var unknownAuthErr x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthErr) {
		return true
	}
	var certVerifyErr *tls.CertificateVerificationError
	if errors.As(err, &certVerifyErr) {
		return true
	}
	var recordHeaderErr tls.RecordHeaderError
	if errors.As(err, &recordHeaderErr) {
		return true
	}
	return false
}

func buildUpstreamRequest(req *http.Request, svc UpstreamServiceConfig) (*http.Request, error) {
	base, err := url.Parse(svc.BaseURL)
	if err != nil {
		return nil, err
	}
	target := *base
	target.Path = joinPath(base.Path, req.URL.Path)
	target.RawQuery = req.URL.RawQuery

	var body io.Reader
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	upstreamReq, err := http.NewRequest(req.Method, target.String(), body)
	if err != nil {
		return nil, err
	}

	for name, values := range req.Header {
		if isHopByHop(name) || strings.EqualFold(name, "host") {
			continue
		}
		for _, v := range values {
			upstreamReq.Header.Add(name, v)
		}
	}

	log.Debug().
		Str("component", "router").
		Str("upstream_url", target.String()).
		Str("method", req.Method).
		Msg("proxying request")

	return upstreamReq, nil
}

func stripHopByHopResponse(resp *http.Response) {
	for name := range resp.Header {
		if isHopByHop(name) {
			resp.Header.Del(name)
		}
	}
}

func joinPath(base, reqPath string) string {
	if base == "" {
		return reqPath
	}
	return strings.TrimSuffix(base, "/") + reqPath
}
