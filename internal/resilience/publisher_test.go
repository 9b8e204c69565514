package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/hermesmic/internal/hermes/mock"
	"github.com/MrWong99/hermesmic/internal/resilience"
	"github.com/MrWong99/hermesmic/pkg/provider/vad"
	vadmock "github.com/MrWong99/hermesmic/pkg/provider/vad/mock"
)

var errBroker = errors.New("broker unreachable")

func TestGuardedPublisher_FailsFastWhenOpen(t *testing.T) {
	t.Parallel()
	bus := &mock.Bus{PublishErr: errBroker}
	now := time.Unix(0, 0)
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Second,
		HalfOpenMax:  1,
		Now:          func() time.Time { return now },
	})
	g := resilience.NewGuardedPublisher(bus, resilience.WithBreaker(cb))
	ctx := context.Background()

	for range 2 {
		if err := g.Publish(ctx, "t", []byte("x")); !errors.Is(err, errBroker) {
			t.Fatalf("err = %v, want broker error", err)
		}
	}
	if err := g.Publish(ctx, "t", []byte("x")); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if g.State() != resilience.StateOpen {
		t.Fatalf("state = %v", g.State())
	}

	bus.SetPublishErr(nil)
	now = now.Add(time.Second)
	if err := g.Publish(ctx, "t", []byte("probe")); err != nil {
		t.Fatalf("probe publish: %v", err)
	}
	if g.State() != resilience.StateClosed {
		t.Errorf("state = %v after successful probe", g.State())
	}
	if got := bus.Published(); len(got) != 1 || string(got[0].Payload) != "probe" {
		t.Errorf("published = %v", got)
	}
}

type slowPublisher struct{}

func (slowPublisher) Publish(ctx context.Context, _ string, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestGuardedPublisher_Timeout(t *testing.T) {
	t.Parallel()
	g := resilience.NewGuardedPublisher(slowPublisher{}, resilience.WithPublishTimeout(10*time.Millisecond))
	err := g.Publish(context.Background(), "t", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestVADFallback_UsesNextEngine(t *testing.T) {
	t.Parallel()
	primary := &vadmock.Engine{NewSessionErr: vad.ErrUnavailable}
	secondary := &vadmock.Engine{}
	f := resilience.NewVADFallback(primary, "webrtc", resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	f.AddFallback("energy", secondary)

	cfg := vad.Config{SampleRate: 16000, FrameSizeMs: 30, Mode: 3}
	for range 2 {
		s, err := f.NewSession(cfg)
		if err != nil {
			t.Fatalf("NewSession: %v", err)
		}
		if s == nil {
			t.Fatal("nil session")
		}
	}
	if primary.CallCount() != 1 {
		t.Errorf("primary tried %d times, want 1 (breaker should open)", primary.CallCount())
	}
	if secondary.CallCount() != 2 {
		t.Errorf("fallback used %d times, want 2", secondary.CallCount())
	}
	if got := secondary.NewSessionCalls[0].Cfg; got != cfg {
		t.Errorf("fallback cfg = %+v", got)
	}
	if names := f.Engines(); len(names) != 2 || names[0] != "webrtc" {
		t.Errorf("Engines() = %v", names)
	}
}

func TestVADFallback_AllUnavailable(t *testing.T) {
	t.Parallel()
	f := resilience.NewVADFallback(&vadmock.Engine{NewSessionErr: vad.ErrUnavailable}, "webrtc", resilience.FallbackConfig{})
	_, err := f.NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 30})
	if !errors.Is(err, resilience.ErrAllFailed) || !errors.Is(err, vad.ErrUnavailable) {
		t.Errorf("err = %v", err)
	}
}
