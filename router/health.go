package router

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const healthCheckTimeout = 5 * time.Second

// HealthChecker periodically probes upstream services on their
// configured health_check_path and reports healthy/unhealthy. It is
// independent of the circuit breaker — the two signals never interact.
type HealthChecker struct {
	services map[string]UpstreamServiceConfig

	mu     sync.RWMutex
	status map[string]bool
	client *http.Client

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthChecker creates a health checker for the given services.
func NewHealthChecker(services map[string]UpstreamServiceConfig) *HealthChecker {
	return &HealthChecker{
		services: services,
		status:   make(map[string]bool),
	}
}

// Start launches the background probe loop.
func (h *HealthChecker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	h.client = &http.Client{Timeout: healthCheckTimeout}

	go h.loop(ctx)
}

// Stop cancels the probe loop and closes the HTTP client.
func (h *HealthChecker) Stop() {
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}
	if h.client != nil {
		h.client.CloseIdleConnections()
	}
}

func (h *HealthChecker) loop(ctx context.Context) {
	defer close(h.done)

	interval := h.minInterval()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			h.checkAll(ctx)
			timer.Reset(interval)
		}
	}
}

func (h *HealthChecker) minInterval() time.Duration {
	min := 30 * time.Second
	found := false
	for _, svc := range h.services {
		if svc.HealthCheckPath == "" {
			continue
		}
		if interval := svc.HealthCheckInterval(); !found || interval < min {
			min = interval
			found = true
		}
	}
	if !found || min <= 0 {
		return 30 * time.Second
	}
	return min
}

func (h *HealthChecker) checkAll(ctx context.Context) {
	var wg sync.WaitGroup
	for name, svc := range h.services {
		if svc.HealthCheckPath == "" {
			continue
		}
		wg.Add(1)
		go func(name string, svc UpstreamServiceConfig) {
			defer wg.Done()
			h.checkOne(ctx, name, svc)
		}(name, svc)
	}
	wg.Wait()
}

func (h *HealthChecker) checkOne(ctx context.Context, name string, svc UpstreamServiceConfig) {
	url := strings.TrimSuffix(svc.BaseURL, "/") + svc.HealthCheckPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		h.setHealthy(name, false)
		return
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.setHealthy(name, false)
		log.Debug().Str("component", "health").Str("service", name).Err(err).Msg("health check failed")
		return
	}
	defer resp.Body.Close()

	h.setHealthy(name, resp.StatusCode >= 200 && resp.StatusCode < 300)
}

func (h *HealthChecker) setHealthy(name string, healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[name] = healthy
}

// Status returns a copy of the current service -> healthy snapshot.
func (h *HealthChecker) Status() map[string]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]bool, len(h.status))
	for k, v := range h.status {
		out[k] = v
	}
	return out
}
