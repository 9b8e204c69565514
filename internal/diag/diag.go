// Package diag classifies pipeline failures and reports them to operators.
//
// Every failure is logged, counted on the hermesmic.failures metric and
// published as an [hermes.AudioServerError] so downstream components can
// tell a dead recorder from a dropped frame or a VAD error.
package diag

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/hermesmic/internal/hermes"
	"github.com/MrWong99/hermesmic/internal/observe"
)

// Kind is the failure class.
type Kind int

const (
	// KindCapture means the recorder could not be started or its stream
	// ended. Capture stops for the lifetime of the process.
	KindCapture Kind = iota

	// KindDispatch means one chunk could not be framed or sent. The chunk is
	// dropped.
	KindDispatch

	// KindSummary means voice activity classification failed. The summary of
	// the current interval is suppressed.
	KindSummary

	// KindControl means a control message was malformed. State is unchanged.
	KindControl
)

// String returns the metric label for k.
func (k Kind) String() string {
	switch k {
	case KindCapture:
		return "capture"
	case KindDispatch:
		return "dispatch"
	case KindSummary:
		return "summary"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// Failure is a classified error. Context names the failing command or stage.
type Failure struct {
	Kind    Kind
	Context string
	Err     error
}

// Error implements error.
func (f *Failure) Error() string {
	if f.Context == "" {
		return f.Kind.String() + ": " + f.Err.Error()
	}
	return f.Kind.String() + " (" + f.Context + "): " + f.Err.Error()
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error { return f.Err }

// New wraps err as a Failure of kind k.
func New(k Kind, stage string, err error) *Failure {
	return &Failure{Kind: k, Context: stage, Err: err}
}

// KindOf returns the kind of the first [Failure] in err's chain.
func KindOf(err error) (Kind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}

// publishTimeout bounds one error publication.
const publishTimeout = 2 * time.Second

// Reporter delivers failures.
type Reporter struct {
	pub     hermes.Publisher
	siteID  string
	metrics *observe.Metrics
	log     *slog.Logger
}

// Option configures a [Reporter].
type Option func(*Reporter)

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Reporter) { r.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) { r.log = l }
}

// NewReporter returns a Reporter that publishes on pub for siteID. pub may be
// nil, in which case failures are only logged and counted.
func NewReporter(pub hermes.Publisher, siteID string, opts ...Option) *Reporter {
	r := &Reporter{pub: pub, siteID: siteID}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// Report logs, counts and publishes f. It never fails; a publish error is
// logged.
func (r *Reporter) Report(ctx context.Context, f *Failure) {
	if f == nil {
		return
	}
	level := slog.LevelWarn
	if f.Kind == KindCapture {
		level = slog.LevelError
	}
	r.log.Log(ctx, level, "pipeline failure",
		"kind", f.Kind.String(),
		"context", f.Context,
		"err", f.Err,
	)
	r.metrics.RecordFailure(ctx, f.Kind.String())

	if r.pub == nil {
		return
	}
	payload, err := hermes.Marshal(hermes.AudioServerError{
		Error:   f.Err.Error(),
		Context: f.Context,
		SiteID:  r.siteID,
	})
	if err != nil {
		r.log.Error("diag: encode error event", "err", err)
		return
	}
	// Publish even when ctx is already cancelled.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.pub.Publish(pctx, hermes.TopicError, payload); err != nil {
		r.log.Warn("diag: publish error event", "err", err)
	}
}

// ReportErr classifies err with k unless it already is a [Failure], then
// reports it.
func (r *Reporter) ReportErr(ctx context.Context, k Kind, stage string, err error) {
	if err == nil {
		return
	}
	var f *Failure
	if !errors.As(err, &f) {
		f = New(k, stage, err)
	}
	r.Report(ctx, f)
}
