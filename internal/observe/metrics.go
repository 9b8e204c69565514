// Package observe provides application-wide observability primitives for
// hermesmic: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all hermesmic metrics.
const meterName = "github.com/MrWong99/hermesmic"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Capture ---

	// CaptureChunks counts chunks read from the recorder.
	CaptureChunks metric.Int64Counter

	// CaptureBytes counts raw PCM bytes read from the recorder.
	CaptureBytes metric.Int64Counter

	// QueueDepth tracks chunks waiting between the reader and the dispatcher.
	QueueDepth metric.Int64UpDownCounter

	// --- Dispatch ---

	// DispatchFrames counts framed chunks sent. Use with attribute:
	//   attribute.String("sink", "bus"|"udp")
	DispatchFrames metric.Int64Counter

	// DispatchDuration tracks the time to frame and send one chunk.
	DispatchDuration metric.Float64Histogram

	// SummariesPublished counts voice activity summaries. Use with attribute:
	//   attribute.Bool("speech", ...)
	SummariesPublished metric.Int64Counter

	// --- Control & errors ---

	// ControlEvents counts handled control messages. Use with attribute:
	//   attribute.String("event", ...)
	ControlEvents metric.Int64Counter

	// Failures counts reported failures. Use with attribute:
	//   attribute.String("kind", "capture"|"dispatch"|"summary"|"control")
	Failures metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// dispatchBuckets defines histogram bucket boundaries (in seconds) for a
// single publish or datagram send.
var dispatchBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CaptureChunks, err = m.Int64Counter("hermesmic.capture.chunks",
		metric.WithDescription("Total chunks read from the recorder."),
	); err != nil {
		return nil, err
	}
	if met.CaptureBytes, err = m.Int64Counter("hermesmic.capture.bytes",
		metric.WithDescription("Total raw PCM bytes read from the recorder."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("hermesmic.queue.depth",
		metric.WithDescription("Chunks queued between reader and dispatcher."),
	); err != nil {
		return nil, err
	}

	if met.DispatchFrames, err = m.Int64Counter("hermesmic.dispatch.frames",
		metric.WithDescription("Total framed chunks sent by sink."),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("hermesmic.dispatch.duration",
		metric.WithDescription("Latency of framing and sending one chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(dispatchBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SummariesPublished, err = m.Int64Counter("hermesmic.summary.published",
		metric.WithDescription("Total audio summaries published by speech flag."),
	); err != nil {
		return nil, err
	}

	if met.ControlEvents, err = m.Int64Counter("hermesmic.control.events",
		metric.WithDescription("Total control messages handled by event."),
	); err != nil {
		return nil, err
	}
	if met.Failures, err = m.Int64Counter("hermesmic.failures",
		metric.WithDescription("Total reported failures by kind."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("hermesmic.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordChunk counts one chunk of n bytes read from the recorder.
func (m *Metrics) RecordChunk(ctx context.Context, n int) {
	m.CaptureChunks.Add(ctx, 1)
	m.CaptureBytes.Add(ctx, int64(n))
}

// RecordFrame counts one framed chunk sent to sink and its send latency.
func (m *Metrics) RecordFrame(ctx context.Context, sink string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("sink", sink))
	m.DispatchFrames.Add(ctx, 1, attrs)
	m.DispatchDuration.Record(ctx, seconds, attrs)
}

// RecordSummary counts one published audio summary.
func (m *Metrics) RecordSummary(ctx context.Context, speech bool) {
	m.SummariesPublished.Add(ctx, 1,
		metric.WithAttributes(attribute.String("speech", strconv.FormatBool(speech))),
	)
}

// RecordControlEvent counts one handled control message.
func (m *Metrics) RecordControlEvent(ctx context.Context, event string) {
	m.ControlEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordFailure counts one reported failure of the given kind.
func (m *Metrics) RecordFailure(ctx context.Context, kind string) {
	m.Failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
