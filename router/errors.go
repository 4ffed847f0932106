package router

import "fmt"

// ErrNoRoute is returned when no routing rule (and no "default" service)
// matches a request path.
type ErrNoRoute struct{ Path string }

func (e *ErrNoRoute) Error() string { return fmt.Sprintf("no route found for path %q", e.Path) }

// ErrCircuitOpen is returned when the upstream's breaker refuses
// admission. No upstream call is made and no breaker failure is
// recorded for this rejection.
type ErrCircuitOpen struct{ Reason string }

func (e *ErrCircuitOpen) Error() string { return e.Reason }

// ErrUpstreamTimeout is returned when the upstream call exceeds its
// per-service deadline.
type ErrUpstreamTimeout struct{ Service string }

func (e *ErrUpstreamTimeout) Error() string {
	return fmt.Sprintf("timeout connecting to %s", e.Service)
}

// ErrUpstreamConnection is returned on TCP/TLS-handshake/DNS failure
// reaching the upstream — the upstream was never actually reached.
type ErrUpstreamConnection struct{ Service string }

func (e *ErrUpstreamConnection) Error() string {
	return fmt.Sprintf("cannot connect to %s", e.Service)
}

// ErrUpstream is any other error the HTTP client returns that is
// neither a timeout nor a dial/DNS/TLS-handshake failure — a malformed
// or truncated upstream response, too many redirects, a CONNECT
// failure through a configured proxy, and similar. The reference
// implementation leaves this bucket uncaught and lets the server
// framework's default 500 handler answer it; writeProxyError does the
// same by falling through to its default case.
type ErrUpstream struct {
	Service string
	Err     error
}

func (e *ErrUpstream) Error() string {
	return fmt.Sprintf("upstream request to %s failed: %v", e.Service, e.Err)
}

func (e *ErrUpstream) Unwrap() error { return e.Err }
