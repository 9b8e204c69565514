package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [FallbackGroup] failed or
// was skipped by its breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the breaker created for each group member.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary value and ordered fallbacks of the same type.
// Each member has its own breaker, so a member that keeps failing is skipped
// until its reset timeout elapses.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group whose first member is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a member. Members are tried in the order they were
// added. AddFallback must not be called concurrently with Execute.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: value, breaker: NewCircuitBreaker(bc)})
}

// Names returns the member names in trial order.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.members))
	for i, m := range fg.members {
		names[i] = m.name
	}
	return names
}

// States returns each member's breaker state keyed by member name.
func (fg *FallbackGroup[T]) States() map[string]State {
	out := make(map[string]State, len(fg.members))
	for _, m := range fg.members {
		out[m.name] = m.breaker.State()
	}
	return out
}

// Execute calls fn with each member in order until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that produce a
// value. It returns the result of the first member that succeeded, or
// [ErrAllFailed] wrapping the last member's error.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.members {
		m := &fg.members[i]
		var res R
		err := m.breaker.Execute(func() error {
			var err error
			res, err = fn(m.value)
			return err
		})
		if err == nil {
			return res, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", m.name)
			continue
		}
		slog.Warn("provider failed, trying next", "provider", m.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
