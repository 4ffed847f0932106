package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentileEmptyWindowIsZero(t *testing.T) {
	assert.Equal(t, 0.0, percentile(nil, 50))
}

func TestPercentileBounds(t *testing.T) {
	latencies := []float64{10, 20, 30, 40, 50}
	p0 := percentile(latencies, 0)
	p100 := percentile(latencies, 100)
	assert.Equal(t, 10.0, p0)
	assert.Equal(t, 50.0, p100)
}

func TestAggregateCountsAndRateLimitHits(t *testing.T) {
	c := NewCollector(time.Hour)
	now := time.Now()

	c.Record(RequestMetric{Timestamp: now, ClientID: "a", Path: "/api/v1/x", StatusCode: 200, LatencyMS: 10})
	c.Record(RequestMetric{Timestamp: now, ClientID: "a", Path: "/api/v1/x", StatusCode: 429, RateLimited: true})
	c.Record(RequestMetric{Timestamp: now, ClientID: "b", Path: "/api/v1/y", StatusCode: 500, Service: "default", LatencyMS: 5})

	agg := c.Aggregate(time.Hour)
	assert.Equal(t, 3, agg.TotalRequests)
	assert.Equal(t, 1, agg.RateLimitedRequests)
	assert.Equal(t, 2, agg.RequestsByClient["a"])
	assert.Equal(t, 1, agg.ErrorsByService["default"])
}

func TestSnapshotErrorRates(t *testing.T) {
	c := NewCollector(time.Hour)
	now := time.Now()
	c.Record(RequestMetric{Timestamp: now, ClientID: "a", Service: "default", StatusCode: 200})
	c.Record(RequestMetric{Timestamp: now, ClientID: "a", Service: "default", StatusCode: 503})

	snap := c.Snapshot(time.Hour)
	assert.Equal(t, 0.5, snap.ErrorRates["default"])
}

func TestOldMetricsExcludedByWindow(t *testing.T) {
	c := NewCollector(time.Hour)
	c.Record(RequestMetric{Timestamp: time.Now().Add(-2 * time.Hour), ClientID: "a", StatusCode: 200})

	agg := c.Aggregate(time.Minute)
	assert.Equal(t, 0, agg.TotalRequests)
}

func TestClientMetricsPercentiles(t *testing.T) {
	c := NewCollector(time.Hour)
	now := time.Now()
	for _, lat := range []float64{10, 20, 30, 40, 100} {
		c.Record(RequestMetric{Timestamp: now, ClientID: "a", LatencyMS: lat, StatusCode: 200})
	}

	cm := c.ClientMetrics("a", time.Hour)
	assert.Equal(t, 5, cm.TotalRequests)
	assert.Equal(t, 30.0, cm.P50LatencyMS)
}

func TestUptimeIncreases(t *testing.T) {
	c := NewCollector(time.Hour)
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, c.UptimeSeconds(), 0.0)
}
