package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/hermesmic/internal/hermes"
)

// DefaultPublishTimeout bounds a single guarded publish.
const DefaultPublishTimeout = 2 * time.Second

// GuardedPublisher is a [hermes.Publisher] that stops calling the broker
// after repeated publish failures and rejects messages with
// [ErrCircuitOpen] until the breaker lets a probe through.
type GuardedPublisher struct {
	next    hermes.Publisher
	breaker *CircuitBreaker
	timeout time.Duration
}

// PublisherOption configures a [GuardedPublisher].
type PublisherOption func(*GuardedPublisher)

// WithPublishTimeout bounds each publish. Zero disables the bound.
func WithPublishTimeout(d time.Duration) PublisherOption {
	return func(g *GuardedPublisher) { g.timeout = d }
}

// WithBreaker replaces the default breaker.
func WithBreaker(cb *CircuitBreaker) PublisherOption {
	return func(g *GuardedPublisher) { g.breaker = cb }
}

// NewGuardedPublisher wraps next.
func NewGuardedPublisher(next hermes.Publisher, opts ...PublisherOption) *GuardedPublisher {
	g := &GuardedPublisher{next: next, timeout: DefaultPublishTimeout}
	for _, o := range opts {
		o(g)
	}
	if g.breaker == nil {
		g.breaker = NewCircuitBreaker(CircuitBreakerConfig{
			Name:         "mqtt-publish",
			MaxFailures:  5,
			ResetTimeout: 5 * time.Second,
			HalfOpenMax:  1,
		})
	}
	return g
}

// Publish forwards to the wrapped publisher through the breaker.
func (g *GuardedPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	err := g.breaker.Execute(func() error {
		pctx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return g.next.Publish(pctx, topic, payload)
	})
	if err != nil {
		return fmt.Errorf("resilience: publish %s: %w", topic, err)
	}
	return nil
}

// State returns the breaker state.
func (g *GuardedPublisher) State() State { return g.breaker.State() }

var _ hermes.Publisher = (*GuardedPublisher)(nil)
