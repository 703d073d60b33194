package retry

import (
	"sync"
	"time"
)

// CircuitPolicy configures a breaker. A zero FailureThreshold disables it.
type CircuitPolicy struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

const defaultResetTimeout = 60 * time.Second

// CircuitBreaker maintains per-provider breaker state. Once a provider has
// failed FailureThreshold times in a row it is skipped until ResetTimeout
// passes, after which a single trial request is let through.
type CircuitBreaker struct {
	policy CircuitPolicy

	mu     sync.Mutex
	states map[string]circuitState
}

type circuitState struct {
	consecutiveFailures int
	openUntil           time.Time
	trialInFlight       bool
}

func NewCircuitBreaker(policy CircuitPolicy) *CircuitBreaker {
	if policy.ResetTimeout <= 0 {
		policy.ResetTimeout = defaultResetTimeout
	}
	return &CircuitBreaker{policy: policy, states: make(map[string]circuitState)}
}

// Enabled reports whether the breaker ever rejects calls.
func (cb *CircuitBreaker) Enabled() bool {
	return cb != nil && cb.policy.FailureThreshold > 0
}

// Allow reports whether a call to name may proceed and whether it is the
// half-open trial.
func (cb *CircuitBreaker) Allow(name string, now time.Time) (allowed bool, trial bool) {
	if !cb.Enabled() {
		return true, false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := cb.states[name]
	if s.openUntil.IsZero() {
		return true, false
	}
	if now.Before(s.openUntil) || s.trialInFlight {
		return false, false
	}
	s.trialInFlight = true
	cb.states[name] = s
	return true, true
}

func (cb *CircuitBreaker) RecordSuccess(name string) {
	if !cb.Enabled() {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.states, name)
}

// Release ends a half-open trial that neither proved nor disproved provider
// health, letting the next call through as a new trial.
func (cb *CircuitBreaker) Release(name string) {
	if !cb.Enabled() {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if s, ok := cb.states[name]; ok && s.trialInFlight {
		s.trialInFlight = false
		cb.states[name] = s
	}
}

func (cb *CircuitBreaker) RecordFailure(name string, now time.Time) {
	if !cb.Enabled() {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := cb.states[name]
	if s.trialInFlight {
		// failed trial reopens immediately
		cb.states[name] = circuitState{openUntil: now.Add(cb.policy.ResetTimeout)}
		return
	}
	s.consecutiveFailures++
	if s.consecutiveFailures >= cb.policy.FailureThreshold {
		s.openUntil = now.Add(cb.policy.ResetTimeout)
		s.consecutiveFailures = 0
	}
	cb.states[name] = s
}
