package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// useTracer installs an in-memory tracer provider for the test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	useTracer(t)
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	seen := map[string]bool{}
	for range 50 {
		ctx, span := StartSpan(context.Background(), "dispatch")
		cid := CorrelationID(ctx)
		span.End()
		if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
			t.Fatalf("correlation id %q is not 32 lowercase hex chars", cid)
		}
		if seen[cid] {
			t.Fatalf("duplicate correlation id %s", cid)
		}
		seen[cid] = true
	}
}

func TestStartSiteSpan(t *testing.T) {
	exp := useTracer(t)

	_, span := StartSiteSpan(context.Background(), "control.start_listening", "kitchen")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "control.start_listening" {
		t.Fatalf("spans = %v", spans)
	}
	var site string
	for _, a := range spans[0].Attributes {
		if a.Key == SiteKey {
			site = a.Value.AsString()
		}
	}
	if site != "kitchen" {
		t.Errorf("%s = %q, want kitchen", SiteKey, site)
	}
}

func TestLogger(t *testing.T) {
	useTracer(t)
	tests := []struct {
		name     string
		withSpan bool
	}{
		{name: "inside span", withSpan: true},
		{name: "no span"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			ctx := context.Background()
			if tt.withSpan {
				var span trace.Span
				ctx, span = StartSiteSpan(ctx, "control.get_devices", "default")
				defer span.End()
			}
			Logger(ctx).Info("device list published")

			out := buf.String()
			for _, key := range []string{"trace_id=", "span_id="} {
				if strings.Contains(out, key) != tt.withSpan {
					t.Errorf("log %q contains %s = %v, want %v", out, key, !tt.withSpan, tt.withSpan)
				}
			}
		})
	}
}
