package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthCheckerMarksHealthyAndUnhealthy(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer unhealthy.Close()

	services := map[string]UpstreamServiceConfig{
		"good": {Name: "good", BaseURL: healthy.URL, HealthCheckPath: "/health", HealthCheckIntervalSeconds: 0.05},
		"bad":  {Name: "bad", BaseURL: unhealthy.URL, HealthCheckPath: "/health", HealthCheckIntervalSeconds: 0.05},
	}

	hc := NewHealthChecker(services)
	hc.Start()
	defer hc.Stop()

	assert.Eventually(t, func() bool {
		status := hc.Status()
		return status["good"] && !status["bad"]
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHealthCheckerSkipsServicesWithoutPath(t *testing.T) {
	services := map[string]UpstreamServiceConfig{
		"none": {Name: "none", BaseURL: "http://localhost:1"},
	}
	hc := NewHealthChecker(services)
	hc.Start()
	defer hc.Stop()

	time.Sleep(50 * time.Millisecond)
	status := hc.Status()
	_, tracked := status["none"]
	assert.False(t, tracked)
}
