// Package resilience keeps a failing dependency from stalling the audio path.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open).
// [GuardedPublisher] puts one in front of the Hermes bus so that a dead
// broker costs the dispatcher one fast error per chunk instead of a publish
// timeout. [FallbackGroup] and [VADFallback] pick the first healthy VAD
// engine among several.
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

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls allowed, and the number of
	// successes required to close again. Default: 3.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition with the
	// breaker's lock released.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	probes       int
	probeSuccess int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
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
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn unless the breaker is open or its probe budget is spent,
// in which case it returns [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, ok, changed := cb.admit()
	cb.notify(changed)
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()

	cb.notify(cb.record(probe, err))
	return err
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := cb.transition(StateClosed)
	cb.mu.Unlock()
	cb.notify(t)
}

type change struct {
	from, to State
}

// admit decides whether a call may proceed.
func (cb *CircuitBreaker) admit() (probe, ok bool, changed *change) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, false, nil
		}
		changed = cb.transition(StateHalfOpen)
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, false, nil
		}
	case StateClosed:
		return false, true, nil
	}
	cb.probes++
	return true, true, changed
}

// record books the outcome of an admitted call.
func (cb *CircuitBreaker) record(probe bool, err error) *change {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		if probe || cb.state == StateHalfOpen {
			return cb.transition(StateOpen)
		}
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			return cb.transition(StateOpen)
		}
		return nil
	}

	if !probe {
		cb.failures = 0
		return nil
	}
	if cb.state != StateHalfOpen {
		return nil
	}
	cb.probeSuccess++
	if cb.probeSuccess >= cb.cfg.HalfOpenMax {
		return cb.transition(StateClosed)
	}
	return nil
}

// transition moves to the given state and resets the counters that belong
// to it. Must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) *change {
	from := cb.state
	cb.state = to
	switch to {
	case StateOpen:
		cb.openedAt = cb.cfg.Now()
	case StateHalfOpen:
		cb.probes, cb.probeSuccess = 0, 0
	case StateClosed:
		cb.failures, cb.probes, cb.probeSuccess = 0, 0, 0
	}
	if from == to {
		return nil
	}
	return &change{from: from, to: to}
}

func (cb *CircuitBreaker) notify(c *change) {
	if c == nil {
		return
	}
	level := slog.LevelInfo
	if c.to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state changed",
		"name", cb.cfg.Name,
		"from", c.from.String(),
		"to", c.to.String(),
	)
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, c.from, c.to)
	}
}
