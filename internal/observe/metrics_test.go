package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the int64 sum data point carrying key=value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.Emit() == value {
				return dp.Value
			}
		}
	}
	t.Fatalf("metric %q: data point with %s=%s not found", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordChunk(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordChunk(ctx, 2048)
	m.RecordChunk(ctx, 1000)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "hermesmic.capture.chunks", "", ""); got != 2 {
		t.Errorf("chunks = %d, want 2", got)
	}
	if got := sumFor(t, rm, "hermesmic.capture.bytes", "", ""); got != 3048 {
		t.Errorf("bytes = %d, want 3048", got)
	}
}

func TestRecordFrame(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrame(ctx, "bus", 0.001)
	m.RecordFrame(ctx, "bus", 0.002)
	m.RecordFrame(ctx, "udp", 0.0001)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "hermesmic.dispatch.frames", "sink", "bus"); got != 2 {
		t.Errorf("bus frames = %d, want 2", got)
	}
	if got := sumFor(t, rm, "hermesmic.dispatch.frames", "sink", "udp"); got != 1 {
		t.Errorf("udp frames = %d, want 1", got)
	}

	met := findMetric(rm, "hermesmic.dispatch.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("sample count = %d, want 3", total)
	}
}

func TestRecordSummaryAndControl(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSummary(ctx, false)
	m.RecordSummary(ctx, true)
	m.RecordSummary(ctx, false)
	m.RecordControlEvent(ctx, "session_started")
	m.RecordFailure(ctx, "capture")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "hermesmic.summary.published", "speech", "false"); got != 2 {
		t.Errorf("silent summaries = %d, want 2", got)
	}
	if got := sumFor(t, rm, "hermesmic.control.events", "event", "session_started"); got != 1 {
		t.Errorf("control events = %d, want 1", got)
	}
	if got := sumFor(t, rm, "hermesmic.failures", "kind", "capture"); got != 1 {
		t.Errorf("failures = %d, want 1", got)
	}
}

func TestQueueDepth(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.QueueDepth.Add(ctx, 3)
	m.QueueDepth.Add(ctx, -1)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "hermesmic.queue.depth", "", ""); got != 2 {
		t.Errorf("queue depth = %d, want 2", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "hermesmic.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
