package gateway

import (
	"net/http"
	"time"

	"github.com/Polqt/ratelimitgw/circuit"
	"github.com/Polqt/ratelimitgw/config"
	"github.com/Polqt/ratelimitgw/metrics"
	"github.com/Polqt/ratelimitgw/ratelimit"
	"github.com/Polqt/ratelimitgw/router"
)

// exemptPrefixes never receive rate limiting or metrics recording.
var exemptPrefixes = []string{"/health", "/metrics", "/ready", "/_internal"}

// Gateway wires together the rate limiter, circuit breaker registry,
// router, health checker, and metrics collector behind a single HTTP
// handler.
type Gateway struct {
	cfg *config.Config

	Limiter  *ratelimit.Limiter
	Breakers *circuit.Registry
	Router   *router.Router
	Health   *router.HealthChecker
	Metrics  *metrics.Collector
	Tiers    *TierStore

	mux *http.ServeMux
}

// New constructs a Gateway from configuration. Components are
// constructed but not started — call Start before serving traffic.
func New(cfg *config.Config) (*Gateway, error) {
	breakers := circuit.NewRegistry()

	r, err := router.New(cfg.UpstreamServices, cfg.EndpointCosts, breakers)
	if err != nil {
		return nil, err
	}

	retention := time.Duration(cfg.MetricsRetentionSeconds) * time.Second
	if retention <= 0 {
		retention = time.Hour
	}

	gw := &Gateway{
		cfg:      cfg,
		Limiter:  ratelimit.New(cfg.RateLimits),
		Breakers: breakers,
		Router:   r,
		Health:   router.NewHealthChecker(cfg.UpstreamServices),
		Metrics:  metrics.NewCollector(retention),
		Tiers:    NewTierStore(),
	}
	gw.mux = gw.buildMux()
	return gw, nil
}

// Start initializes the router's HTTP client and launches the health
// checker's background loop.
func (g *Gateway) Start() {
	g.Router.Start()
	g.Health.Start()
}

// Stop cancels the health-check loop and closes the router's HTTP
// client, draining outstanding requests.
func (g *Gateway) Stop() {
	g.Health.Stop()
	g.Router.Stop()
}

func isExemptPath(path string) bool {
	for _, prefix := range exemptPrefixes {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
