// Package circuit implements a per-upstream circuit breaker state
// machine with timeout-driven half-open recovery probing.
package circuit

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is one of the three circuit breaker states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Config holds the per-upstream breaker tuning parameters. RecoveryTimeout
// is expressed in seconds in YAML, matching the reference gateway's
// plain-number config fields rather than Go duration strings.
type Config struct {
	FailureThreshold       int     `yaml:"failure_threshold"`
	RecoveryTimeoutSeconds float64 `yaml:"recovery_timeout"`
	HalfOpenRequests       int     `yaml:"half_open_requests"`
}

// RecoveryTimeout is the recovery wait as a time.Duration.
func (c Config) RecoveryTimeout() time.Duration {
	return time.Duration(c.RecoveryTimeoutSeconds * float64(time.Second))
}

// Stats are the observable counters for a breaker.
type Stats struct {
	TotalRequests       int64
	SuccessfulRequests  int64
	FailedRequests      int64
	ConsecutiveFailures int64
	ConsecutiveSuccess  int64
	LastFailureTime     time.Time
	LastSuccessTime     time.Time
	StateChangedAt      time.Time
}

// Breaker guards a single upstream service.
type Breaker struct {
	name string
	cfg  Config

	mu            sync.Mutex
	state         State
	stats         Stats
	halfOpenCount int
}

// New creates a breaker for the given upstream in the CLOSED state.
func New(name string, cfg Config) *Breaker {
	return &Breaker{
		name:  name,
		cfg:   cfg,
		state: Closed,
		stats: Stats{StateChangedAt: time.Now()},
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// shouldHalfOpen reports whether an OPEN breaker has waited out its
// recovery timeout. Must be called with the lock held.
func (b *Breaker) shouldHalfOpen() bool {
	if b.state != Open {
		return false
	}
	if b.stats.LastFailureTime.IsZero() {
		return true
	}
	return time.Since(b.stats.LastFailureTime) >= b.cfg.RecoveryTimeout()
}

// CanExecute reports whether a request may proceed, and if not, a
// human-readable rejection reason. Evaluating this call may itself
// trigger the OPEN -> HALF_OPEN transition.
func (b *Breaker) CanExecute() (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shouldHalfOpen() {
		b.transitionTo(HalfOpen)
	}

	switch b.state {
	case Closed:
		return true, ""

	case Open:
		retry := b.cfg.RecoveryTimeout()
		if !b.stats.LastFailureTime.IsZero() {
			elapsed := time.Since(b.stats.LastFailureTime)
			retry = b.cfg.RecoveryTimeout() - elapsed
			if retry < 0 {
				retry = 0
			}
		}
		return false, fmt.Sprintf("Circuit open for %s, retry in %.1fs", b.name, retry.Seconds())

	default: // HalfOpen
		if b.halfOpenCount < b.cfg.HalfOpenRequests {
			b.halfOpenCount++
			return true, ""
		}
		return false, fmt.Sprintf("Circuit half-open for %s, awaiting test results", b.name)
	}
}

// RecordSuccess records a successful upstream call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.TotalRequests++
	b.stats.SuccessfulRequests++
	b.stats.ConsecutiveSuccess++
	b.stats.ConsecutiveFailures = 0
	b.stats.LastSuccessTime = time.Now()

	if b.state == HalfOpen && b.stats.ConsecutiveSuccess >= int64(b.cfg.HalfOpenRequests) {
		b.transitionTo(Closed)
	}
}

// RecordFailure records a failed upstream call outcome.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.TotalRequests++
	b.stats.FailedRequests++
	b.stats.ConsecutiveFailures++
	b.stats.ConsecutiveSuccess = 0
	b.stats.LastFailureTime = time.Now()

	switch b.state {
	case HalfOpen:
		b.transitionTo(Open)
	case Closed:
		if b.stats.ConsecutiveFailures >= int64(b.cfg.FailureThreshold) {
			b.transitionTo(Open)
		}
	}
}

// transitionTo moves to a new state and applies its side effects. Must
// be called with the lock held. Only an actual state change stamps
// StateChangedAt.
func (b *Breaker) transitionTo(next State) {
	if next == b.state {
		return
	}
	prev := b.state
	b.state = next
	b.stats.StateChangedAt = time.Now()

	switch next {
	case Closed:
		b.stats.ConsecutiveFailures = 0
	case HalfOpen:
		b.halfOpenCount = 0
		b.stats.ConsecutiveSuccess = 0
	}

	log.Info().
		Str("component", "circuit").
		Str("service", b.name).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("circuit breaker transition")
}

// Reset returns the breaker to CLOSED with zeroed counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.stats = Stats{StateChangedAt: time.Now()}
	b.halfOpenCount = 0
}

// Status is the JSON-serializable breaker snapshot for the admin API.
type Status struct {
	Service string         `json:"service"`
	State   State          `json:"state"`
	Stats   StatusStats    `json:"stats"`
	Config  StatusConfig   `json:"config"`
}

// StatusStats is the counters portion of Status.
type StatusStats struct {
	TotalRequests       int64 `json:"total_requests"`
	Successful          int64 `json:"successful"`
	Failed              int64 `json:"failed"`
	ConsecutiveFailures int64 `json:"consecutive_failures"`
	ConsecutiveSuccess  int64 `json:"consecutive_successes"`
}

// StatusConfig is the effective-config portion of Status.
type StatusConfig struct {
	FailureThreshold int     `json:"failure_threshold"`
	RecoveryTimeout  float64 `json:"recovery_timeout"`
	HalfOpenRequests int     `json:"half_open_requests"`
}

// GetStatus returns a point-in-time snapshot suitable for JSON encoding.
func (b *Breaker) GetStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Status{
		Service: b.name,
		State:   b.state,
		Stats: StatusStats{
			TotalRequests:       b.stats.TotalRequests,
			Successful:          b.stats.SuccessfulRequests,
			Failed:              b.stats.FailedRequests,
			ConsecutiveFailures: b.stats.ConsecutiveFailures,
			ConsecutiveSuccess:  b.stats.ConsecutiveSuccess,
		},
		Config: StatusConfig{
			FailureThreshold: b.cfg.FailureThreshold,
			RecoveryTimeout:  b.cfg.RecoveryTimeoutSeconds,
			HalfOpenRequests: b.cfg.HalfOpenRequests,
		},
	}
}
