// Package router implements path-pattern routing, header-scrubbed
// proxying, failure classification, and background health checking of
// upstream services.
package router

import (
	"regexp"
	"time"

	"github.com/Polqt/ratelimitgw/circuit"
)

// UpstreamServiceConfig describes one upstream the gateway can route to.
// Timeouts are expressed in seconds in YAML, matching the reference
// gateway's plain-number config fields rather than Go duration strings.
type UpstreamServiceConfig struct {
	Name                       string         `yaml:"name"`
	BaseURL                    string         `yaml:"base_url"`
	TimeoutSeconds             float64        `yaml:"timeout"`
	CircuitBreaker             circuit.Config `yaml:"circuit_breaker"`
	HealthCheckPath            string         `yaml:"health_check_path"`
	HealthCheckIntervalSeconds float64        `yaml:"health_check_interval"`
}

// Timeout is the per-request upstream timeout as a time.Duration.
func (c UpstreamServiceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// HealthCheckInterval is the probe interval as a time.Duration.
func (c UpstreamServiceConfig) HealthCheckInterval() time.Duration {
	return time.Duration(c.HealthCheckIntervalSeconds * float64(time.Second))
}

// EndpointConfig maps a path regex to a token cost. The order of a list
// of EndpointConfig entries is significant — the first match wins.
type EndpointConfig struct {
	PathPattern string `yaml:"path_pattern"`
	TokenCost   int    `yaml:"token_cost"`
}

// compiledEndpoint is an EndpointConfig with its regex pre-compiled and
// anchored to match (not search) at the start of the path.
type compiledEndpoint struct {
	pattern   *regexp.Regexp
	tokenCost int
}

// compiledRoute is a routing rule with its regex pre-compiled.
type compiledRoute struct {
	pattern *regexp.Regexp
	service string
}

// DefaultEndpointConfigs returns the built-in endpoint cost table from
// spec, in priority order (most specific first).
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		{PathPattern: `^/api/v1/search.*`, TokenCost: 5},
		{PathPattern: `^/api/v1/export.*`, TokenCost: 10},
		{PathPattern: `^/api/v1/bulk.*`, TokenCost: 20},
		{PathPattern: `^/api/v1/.*`, TokenCost: 1},
	}
}
