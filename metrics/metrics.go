// Package metrics implements the gateway's append-only request log and
// its windowed aggregation, percentile latency, and per-client views.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// RequestMetric is one immutable recorded request outcome.
type RequestMetric struct {
	Timestamp   time.Time
	ClientID    string
	Path        string
	Method      string
	StatusCode  int
	LatencyMS   float64
	RateLimited bool
	Service     string
	Error       string
}

// Aggregated is the result of aggregating a window of metrics.
type Aggregated struct {
	TotalRequests         int
	SuccessfulRequests    int
	FailedRequests        int
	RateLimitedRequests   int
	TotalLatencyMS        float64
	RequestsByClient      map[string]int
	RequestsByPath        map[string]int
	RequestsByService     map[string]int
	ErrorsByService       map[string]int
	RateLimitHitsByClient map[string]int
	Latencies             []float64
}

func newAggregated() *Aggregated {
	return &Aggregated{
		RequestsByClient:      make(map[string]int),
		RequestsByPath:        make(map[string]int),
		RequestsByService:     make(map[string]int),
		ErrorsByService:       make(map[string]int),
		RateLimitHitsByClient: make(map[string]int),
	}
}

// Collector is the append-only request log. Writes are serialized under
// a single mutex; every 1000 appends the log is swept for entries older
// than retention.
type Collector struct {
	mu        sync.Mutex
	retention time.Duration
	records   []RequestMetric
	startedAt time.Time
}

// NewCollector creates a collector retaining records for the given
// duration.
func NewCollector(retention time.Duration) *Collector {
	return &Collector{
		retention: retention,
		startedAt: time.Now(),
	}
}

// Record appends one request metric.
func (c *Collector) Record(m RequestMetric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, m)
	if len(c.records)%1000 == 0 {
		c.cleanupLocked()
	}
}

// cleanupLocked drops records older than retention. Caller must hold mu.
func (c *Collector) cleanupLocked() {
	cutoff := time.Now().Add(-c.retention)
	kept := c.records[:0]
	for _, m := range c.records {
		if m.Timestamp.After(cutoff) {
			kept = append(kept, m)
		}
	}
	c.records = kept
}

// Aggregate returns aggregated metrics over the trailing window
// seconds. A window <= 0 aggregates the full retention period.
func (c *Collector) Aggregate(window time.Duration) Aggregated {
	c.mu.Lock()
	defer c.mu.Unlock()

	if window <= 0 {
		window = c.retention
	}
	cutoff := time.Now().Add(-window)

	agg := newAggregated()
	for _, m := range c.records {
		if m.Timestamp.Before(cutoff) {
			continue
		}
		agg.TotalRequests++

		if m.StatusCode >= 200 && m.StatusCode < 400 {
			agg.SuccessfulRequests++
		} else {
			agg.FailedRequests++
		}

		if m.RateLimited {
			agg.RateLimitedRequests++
			agg.RateLimitHitsByClient[m.ClientID]++
		}

		agg.RequestsByClient[m.ClientID]++
		agg.RequestsByPath[m.Path]++

		if m.Service != "" {
			agg.RequestsByService[m.Service]++
			if m.StatusCode >= 500 || m.Error != "" {
				agg.ErrorsByService[m.Service]++
			}
		}

		agg.TotalLatencyMS += m.LatencyMS
		agg.Latencies = append(agg.Latencies, m.LatencyMS)
	}

	return *agg
}

// Snapshot is the JSON-serializable aggregate view for /metrics.
type Snapshot struct {
	TotalRequests         int                `json:"total_requests"`
	RequestsByClient      map[string]int     `json:"requests_by_client"`
	RateLimitHits         map[string]int     `json:"rate_limit_hits"`
	AverageLatencyMS      float64            `json:"average_latency_ms"`
	ErrorRates            map[string]float64 `json:"error_rates"`
	CircuitBreakerStates  map[string]string  `json:"circuit_breaker_states"`
}

// Snapshot builds the /metrics response for a window. Circuit breaker
// states are filled in by the caller (the metrics collector has no
// knowledge of the breaker registry).
func (c *Collector) Snapshot(window time.Duration) Snapshot {
	agg := c.Aggregate(window)

	avgLatency := 0.0
	if len(agg.Latencies) > 0 {
		avgLatency = agg.TotalLatencyMS / float64(len(agg.Latencies))
	}

	errorRates := make(map[string]float64, len(agg.RequestsByService))
	for service, count := range agg.RequestsByService {
		errs := agg.ErrorsByService[service]
		if count > 0 {
			errorRates[service] = float64(errs) / float64(count)
		}
	}

	return Snapshot{
		TotalRequests:        agg.TotalRequests,
		RequestsByClient:     agg.RequestsByClient,
		RateLimitHits:        agg.RateLimitHitsByClient,
		AverageLatencyMS:     avgLatency,
		ErrorRates:           errorRates,
		CircuitBreakerStates: map[string]string{},
	}
}

// PercentileLatency returns the latency at percentile p (0-100) over
// window. An empty window returns 0.
func (c *Collector) PercentileLatency(p float64, window time.Duration) float64 {
	agg := c.Aggregate(window)
	return percentile(agg.Latencies, p)
}

func percentile(latencies []float64, p float64) float64 {
	n := len(latencies)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, latencies)
	sort.Float64s(sorted)

	idx := int(float64(n) * p / 100)
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// UptimeSeconds is wall-clock time since the collector was constructed.
func (c *Collector) UptimeSeconds() float64 {
	return time.Since(c.startedAt).Seconds()
}

// ClientMetrics is the per-client view for /metrics/client/{id}.
type ClientMetrics struct {
	ClientID           string  `json:"client_id"`
	TotalRequests      int     `json:"total_requests"`
	RateLimitedRequests int    `json:"rate_limited_requests"`
	ErrorRequests      int     `json:"error_requests"`
	AverageLatencyMS   float64 `json:"average_latency_ms"`
	P50LatencyMS       float64 `json:"p50_latency_ms"`
	P99LatencyMS       float64 `json:"p99_latency_ms"`
}

// ClientMetrics computes the per-client view over window.
func (c *Collector) ClientMetrics(clientID string, window time.Duration) ClientMetrics {
	c.mu.Lock()
	cutoff := time.Now().Add(-window)
	var latencies []float64
	total, rateLimited, errs := 0, 0, 0
	for _, m := range c.records {
		if m.Timestamp.Before(cutoff) || m.ClientID != clientID {
			continue
		}
		total++
		if m.RateLimited {
			rateLimited++
		}
		if m.StatusCode >= 400 {
			errs++
		}
		latencies = append(latencies, m.LatencyMS)
	}
	c.mu.Unlock()

	avg := 0.0
	sum := 0.0
	for _, l := range latencies {
		sum += l
	}
	if len(latencies) > 0 {
		avg = sum / float64(len(latencies))
	}

	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	p50, p99 := 0.0, 0.0
	if n := len(sorted); n > 0 {
		p50 = sorted[n/2]
		idx := int(float64(n) * 0.99)
		if idx >= n {
			idx = n - 1
		}
		p99 = sorted[idx]
	}

	return ClientMetrics{
		ClientID:            clientID,
		TotalRequests:       total,
		RateLimitedRequests: rateLimited,
		ErrorRequests:       errs,
		AverageLatencyMS:    avg,
		P50LatencyMS:        p50,
		P99LatencyMS:        p99,
	}
}
