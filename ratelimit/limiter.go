package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ClientStatus is the externally reported state of one client's bucket.
type ClientStatus struct {
	ClientID        string  `json:"client_id"`
	Tier            Tier    `json:"tier"`
	AvailableTokens float64 `json:"available_tokens"`
	MaxTokens       int     `json:"max_tokens"`
	RefillRate      float64 `json:"refill_rate"`
	TokensPerSecond float64 `json:"tokens_per_second"`
}

// Limiter is a token-bucket rate limiter keyed by client id. It never
// rejects with an error — Check only ever returns allowed=false.
type Limiter struct {
	mu      sync.Mutex
	tiers   map[Tier]TierConfig
	buckets map[string]*bucket
}

// New creates a limiter from a tier configuration table. Missing tiers
// fall back to FREE at lookup time.
func New(tiers map[Tier]TierConfig) *Limiter {
	return &Limiter{
		tiers:   tiers,
		buckets: make(map[string]*bucket),
	}
}

// Check charges cost tokens from client's bucket, creating the bucket
// (full) on first sight and retroactively applying a tier change if the
// supplied tier differs from the one last seen for this client.
func (l *Limiter) Check(clientID string, tier Tier, cost int) (allowed bool, retryAfter, remaining float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := configFor(l.tiers, tier)

	b, ok := l.buckets[clientID]
	if !ok {
		b = newBucket(cfg, tier)
		l.buckets[clientID] = b
	} else if b.tier != tier {
		b.applyTier(cfg, tier)
	}

	allowed, retryAfter, remaining = b.consume(cost)
	log.Debug().
		Str("component", "ratelimit").
		Str("client_id", clientID).
		Str("tier", string(tier)).
		Int("cost", cost).
		Bool("allowed", allowed).
		Float64("remaining", remaining).
		Msg("rate limit check")
	return allowed, retryAfter, remaining
}

// Status returns the current bucket state for a client, or false if the
// client has no bucket yet.
func (l *Limiter) Status(clientID string) (ClientStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[clientID]
	if !ok {
		return ClientStatus{}, false
	}
	b.refill(time.Now())

	cfg := configFor(l.tiers, b.tier)
	return ClientStatus{
		ClientID:        clientID,
		Tier:            b.tier,
		AvailableTokens: b.tokens,
		MaxTokens:       b.capacity,
		RefillRate:      b.refillRate,
		TokensPerSecond: cfg.TokensPerSecond,
	}, true
}

// Reset refills a client's bucket to full capacity. Returns false if the
// client is unknown.
func (l *Limiter) Reset(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[clientID]
	if !ok {
		return false
	}
	b.tokens = float64(b.capacity)
	b.last = time.Now()
	return true
}

// Remove deletes a client's bucket. Returns false if the client was
// unknown.
func (l *Limiter) Remove(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.buckets[clientID]; !ok {
		return false
	}
	delete(l.buckets, clientID)
	return true
}

// CleanupInactive evicts buckets whose last refill is older than
// maxIdle, returning the number removed.
func (l *Limiter) CleanupInactive(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, b := range l.buckets {
		if now.Sub(b.last) > maxIdle {
			delete(l.buckets, id)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Str("component", "ratelimit").Int("removed", removed).Msg("cleaned up inactive buckets")
	}
	return removed
}

// Clients returns all currently tracked client ids.
func (l *Limiter) Clients() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, len(l.buckets))
	for id := range l.buckets {
		ids = append(ids, id)
	}
	return ids
}
