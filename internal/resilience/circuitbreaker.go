// Package resilience keeps flaky backends from stalling the overlay.
//
// [CircuitBreaker] trips after repeated failures and lets a few probe calls
// through once its cool-down has passed. The transcription engine wraps its
// recognisers in an [ASRFallback]. The keyword-info aggregator gives every
// lookup source its own breaker so a dead endpoint is skipped instead of
// costing a timeout on every click.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned instead of calling through an open breaker.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed.
	StateOpen
	// StateHalfOpen lets a bounded number of probes through. All of them
	// succeeding closes the breaker; one failure opens it again.
	StateHalfOpen
)

var stateNames = [...]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig configures a [CircuitBreaker]. Zero fields take the
// documented defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and metrics.
	Name string
	// MaxFailures is how many consecutive failures open the breaker. Default 5.
	MaxFailures int
	// ResetTimeout is the open cool-down before probing. Default 30s.
	ResetTimeout time.Duration
	// HalfOpenMax is the number of successful probes needed to close. Default 3.
	HalfOpenMax int
	// IsFailure decides which errors count. Default [DefaultIsFailure].
	IsFailure func(error) bool
	// OnStateChange is called after each transition, outside the lock.
	OnStateChange func(name string, from, to State)
	// Now replaces time.Now, mostly for tests.
	Now func() time.Time
}

// DefaultIsFailure counts every error except a cancelled context, which
// means the caller gave up rather than the backend failing.
func DefaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// CircuitBreaker guards calls to one backend.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int       // consecutive, while closed
	openedAt time.Time // last transition to open
	probes   int       // admitted while half-open
	passed   int       // succeeded while half-open
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = DefaultIsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// State reports the current state. An open breaker whose cool-down has
// passed reports [StateHalfOpen] even though the switch happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooled() {
		return StateHalfOpen
	}
	return cb.state
}

// Execute calls fn unless the breaker rejects it with [ErrCircuitOpen].
// Errors from fn are returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// Call is [CircuitBreaker.Execute] for functions with a result.
func Call[R any](cb *CircuitBreaker, fn func() (R, error)) (R, error) {
	var out R
	err := cb.Execute(func() (err error) {
		out, err = fn()
		return err
	})
	return out, err
}

// Reset closes the breaker and forgets its history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.toClosed()
	cb.mu.Unlock()
	slog.Info("circuit breaker reset", "name", cb.cfg.Name)
	cb.notify(from, StateClosed)
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen {
		if !cb.cooled() {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.state, cb.probes, cb.passed = StateHalfOpen, 0, 0
		slog.Info("circuit breaker probing", "name", cb.cfg.Name)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.probes++
		probe = true
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
	return probe, nil
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	switch {
	case cb.cfg.IsFailure(err):
		cb.failures++
		if probe || cb.failures >= cb.cfg.MaxFailures {
			cb.toOpen()
		}
	case err != nil:
		// Not the backend's fault; a probe slot is handed back.
		if probe {
			cb.probes--
		}
	case probe:
		cb.passed++
		if cb.state == StateHalfOpen && cb.passed >= cb.cfg.HalfOpenMax {
			cb.toClosed()
			slog.Info("circuit breaker closed", "name", cb.cfg.Name)
		}
	default:
		cb.failures = 0
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

// toOpen and toClosed must be called with cb.mu held.
func (cb *CircuitBreaker) toOpen() {
	if cb.state != StateOpen {
		slog.Warn("circuit breaker opened", "name", cb.cfg.Name, "consecutive_failures", cb.failures)
	}
	cb.state = StateOpen
	cb.openedAt = cb.cfg.Now()
}

func (cb *CircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.failures, cb.probes, cb.passed = 0, 0, 0
}

func (cb *CircuitBreaker) cooled() bool {
	return cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}
