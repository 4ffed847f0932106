// Package gateway composes the rate limiter, circuit breaker registry,
// router, and metrics collector into the single per-request dispatch
// pipeline, plus the admin HTTP surface.
package gateway

import (
	"sync"

	"github.com/Polqt/ratelimitgw/ratelimit"
)

// rateLimitResponse is the JSON body returned on a 429.
type rateLimitResponse struct {
	Error           string  `json:"error"`
	RetryAfter      float64 `json:"retry_after"`
	RemainingTokens float64 `json:"remaining_tokens"`
}

// healthStatus is the /health response body.
type healthStatus struct {
	Status        string            `json:"status"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Services      map[string]string `json:"services"`
}

// TierStore is an in-memory client-id -> tier mapping. Missing clients
// default to FREE.
type TierStore struct {
	tiers map[string]ratelimit.Tier
	mu    sync.RWMutex
}

func NewTierStore() *TierStore {
	return &TierStore{tiers: make(map[string]ratelimit.Tier)}
}

func (s *TierStore) Get(clientID string) ratelimit.Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tier, ok := s.tiers[clientID]; ok {
		return tier
	}
	return ratelimit.TierFree
}

func (s *TierStore) Set(clientID string, tier ratelimit.Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[clientID] = tier
}

func (s *TierStore) List() map[string]ratelimit.Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ratelimit.Tier, len(s.tiers))
	for k, v := range s.tiers {
		out[k] = v
	}
	return out
}
