// Package dispatch drives the audio path: it frames each captured chunk,
// routes it to the bus or the UDP destination, feeds the voice activity
// accumulator and publishes its summaries.
//
// A [Dispatcher] is the single consumer of the capture queue. Chunks are
// handled one at a time in the order they were read. A failure on one chunk
// is reported and the chunk dropped; the loop only ends when the queue is
// closed. Once the context is done the dispatcher keeps draining what the
// reader already queued, bounded by the drain timeout.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/hermesmic/internal/capture"
	"github.com/MrWong99/hermesmic/internal/diag"
	"github.com/MrWong99/hermesmic/internal/hermes"
	"github.com/MrWong99/hermesmic/internal/observe"
	"github.com/MrWong99/hermesmic/internal/route"
	"github.com/MrWong99/hermesmic/internal/summary"
	"github.com/MrWong99/hermesmic/pkg/audio"
)

// Summarizer is the voice activity accumulator. It is called from the
// dispatcher goroutine only.
type Summarizer interface {
	Process(chunk []byte) (summary.Summary, bool, error)
}

// Reporter receives recovered per-chunk failures.
type Reporter interface {
	ReportErr(ctx context.Context, k diag.Kind, stage string, err error)
}

// Dispatcher consumes chunks from the capture queue.
type Dispatcher struct {
	state   *route.State
	pub     hermes.Publisher
	codec   audio.WAVCodec
	siteID  string
	udp     Sender
	sum     Summarizer
	rep     Reporter
	tap     *TestCapture
	metrics *observe.Metrics

	frameTopic   string
	summaryTopic string
	drainTimeout time.Duration
}

// DefaultDrainTimeout bounds how long [Dispatcher.Run] keeps draining the
// queue after its context is done.
const DefaultDrainTimeout = 5 * time.Second

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithUDP sets the datagram sender used while the route selects UDP.
func WithUDP(s Sender) Option {
	return func(d *Dispatcher) { d.udp = s }
}

// WithSummarizer sets the voice activity accumulator. Without one, summary
// toggles have no effect.
func WithSummarizer(s Summarizer) Option {
	return func(d *Dispatcher) { d.sum = s }
}

// WithReporter sets where recovered failures go. Default: a
// [diag.Reporter] publishing on the dispatcher's publisher.
func WithReporter(r Reporter) Option {
	return func(d *Dispatcher) { d.rep = r }
}

// WithTestCapture attaches a side buffer that sees every raw chunk.
func WithTestCapture(c *TestCapture) Option {
	return func(d *Dispatcher) { d.tap = c }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithDrainTimeout sets how long Run drains queued chunks after cancellation.
// Default: [DefaultDrainTimeout].
func WithDrainTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.drainTimeout = d }
}

// New returns a Dispatcher that frames chunks with codec and publishes them
// for siteID.
func New(state *route.State, pub hermes.Publisher, codec audio.WAVCodec, siteID string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		state:        state,
		pub:          pub,
		codec:        codec,
		siteID:       siteID,
		frameTopic:   hermes.AudioFrameTopic(siteID),
		summaryTopic: hermes.AudioSummaryTopic(siteID),
		drainTimeout: DefaultDrainTimeout,
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	if d.rep == nil {
		d.rep = diag.NewReporter(pub, siteID, diag.WithMetrics(d.metrics))
	}
	return d
}

// Run dispatches chunks from in until it is closed. When ctx is done first,
// the chunks still queued are dispatched on a context detached from ctx until
// in is closed or the drain timeout passes. Run always returns nil;
// per-chunk failures never end the loop.
func (d *Dispatcher) Run(ctx context.Context, in <-chan capture.Chunk) error {
	slog.Info("dispatcher started", "site_id", d.siteID, "sink", d.state.Sink().String())
	defer slog.Info("dispatcher stopped", "site_id", d.siteID)
	for {
		select {
		case <-ctx.Done():
			d.drain(ctx, in)
			return nil
		case c, ok := <-in:
			if !ok {
				return nil
			}
			d.metrics.QueueDepth.Add(ctx, -1)
			d.Dispatch(ctx, c)
		}
	}
}

// drain dispatches the chunks left in the queue after ctx is done.
func (d *Dispatcher) drain(ctx context.Context, in <-chan capture.Chunk) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.drainTimeout)
	defer cancel()
	n := 0
	for {
		select {
		case c, ok := <-in:
			if !ok {
				if n > 0 {
					slog.Info("dispatcher drained queue", "site_id", d.siteID, "chunks", n)
				}
				return
			}
			d.metrics.QueueDepth.Add(dctx, -1)
			d.Dispatch(dctx, c)
			n++
		case <-dctx.Done():
			slog.Warn("dispatcher drain timed out, dropping queued chunks",
				"site_id", d.siteID, "drained", n, "timeout", d.drainTimeout)
			return
		}
	}
}

// Dispatch handles one chunk: frame and send, tap, then summarize.
func (d *Dispatcher) Dispatch(ctx context.Context, c capture.Chunk) {
	if d.tap != nil {
		d.tap.Append(c.Data)
	}

	if err := d.send(ctx, c); err != nil {
		d.rep.ReportErr(ctx, diag.KindDispatch, fmt.Sprintf("chunk %d", c.Seq), err)
	}

	if d.sum == nil || !d.state.SummaryEnabled() {
		return
	}
	if err := d.summarize(ctx, c); err != nil {
		d.rep.ReportErr(ctx, diag.KindSummary, fmt.Sprintf("summary at chunk %d", c.Seq), err)
	}
}

func (d *Dispatcher) send(ctx context.Context, c capture.Chunk) error {
	frame, err := d.codec.Encode(c.Data)
	if err != nil {
		if errors.Is(err, audio.ErrEmptyChunk) {
			return nil
		}
		return err
	}

	sink := d.state.Sink()
	start := time.Now()
	switch sink {
	case route.UDP:
		if d.udp == nil {
			return errors.New("dispatch: udp selected but no sender configured")
		}
		err = d.udp.Send(frame)
	default:
		err = d.pub.Publish(ctx, d.frameTopic, frame)
	}
	if err != nil {
		return err
	}
	d.metrics.RecordFrame(ctx, sink.String(), time.Since(start).Seconds())
	slog.Debug("frame sent", "seq", c.Seq, "sink", sink.String(), "bytes", len(frame))
	return nil
}

func (d *Dispatcher) summarize(ctx context.Context, c capture.Chunk) error {
	s, ok, err := d.sum.Process(c.Data)
	if ok {
		payload, mErr := hermes.Marshal(hermes.AudioSummary{
			DebiasedEnergy: s.DebiasedEnergy,
			IsSpeech:       s.IsSpeech,
		})
		if mErr != nil {
			return errors.Join(err, mErr)
		}
		if pErr := d.pub.Publish(ctx, d.summaryTopic, payload); pErr != nil {
			return errors.Join(err, fmt.Errorf("dispatch: publish summary: %w", pErr))
		}
		d.metrics.RecordSummary(ctx, s.IsSpeech)
	}
	return err
}
