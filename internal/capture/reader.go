// Package capture owns the external recorder process and turns its output
// into an ordered stream of fixed-size [Chunk] values.
//
// A [Reader] is the single producer of the hand-off queue between capture and
// dispatch. It blocks only on the recorder's output and, when the queue is
// full, on the queue itself. The recorder is never restarted: once its
// stream ends, [Reader.Run] returns a capture [diag.Failure] and audio stops
// for the lifetime of the process.
package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/hermesmic/internal/diag"
	"github.com/MrWong99/hermesmic/internal/observe"
)

// ErrStreamEnded is the cause of the capture failure raised when the recorder
// closes its output.
var ErrStreamEnded = errors.New("capture: recorder stream ended")

// DefaultIdle is how long the reader yields after a read that returned no
// data.
const DefaultIdle = 10 * time.Millisecond

// Chunk is one read from the recorder. Data is never empty and never longer
// than the configured chunk size; only the last chunk before the stream
// ends may be short.
type Chunk struct {
	// Seq numbers chunks from 1 in the order they were read.
	Seq uint64

	Data []byte

	// At is the time the chunk was complete.
	At time.Time
}

// Reader reads fixed-size chunks from a recorder.
type Reader struct {
	opener    Opener
	chunkSize int
	idle      time.Duration
	metrics   *observe.Metrics

	running atomic.Bool
	failure atomic.Pointer[diag.Failure]
}

// Option configures a [Reader].
type Option func(*Reader)

// WithIdle sets the pause after an empty read. Default: [DefaultIdle].
func WithIdle(d time.Duration) Option {
	return func(r *Reader) { r.idle = d }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Reader) { r.metrics = m }
}

// NewReader returns a Reader producing chunks of chunkSize bytes from the
// recorder started by opener.
func NewReader(opener Opener, chunkSize int, opts ...Option) *Reader {
	r := &Reader{opener: opener, chunkSize: chunkSize, idle: DefaultIdle}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Running reports whether the recorder is currently being read.
func (r *Reader) Running() bool { return r.running.Load() }

// Failure returns the capture failure that ended [Reader.Run], or nil.
func (r *Reader) Failure() *diag.Failure { return r.failure.Load() }

// Run starts the recorder and sends chunks to out until the recorder stream
// ends or ctx is done. out is closed when Run returns so the consumer can
// drain it.
//
// Run returns nil after a cancellation and a capture [diag.Failure]
// otherwise.
func (r *Reader) Run(ctx context.Context, out chan<- Chunk) error {
	defer close(out)

	if r.chunkSize <= 0 {
		return r.fail(errors.New("capture: chunk size must be positive"))
	}

	stream, err := r.opener.Open(ctx)
	if err != nil {
		return r.fail(err)
	}
	// Closing the stream is what unblocks a Read in progress on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer func() {
		stop()
		if err := stream.Close(); err != nil {
			slog.Debug("recorder close", "err", err)
		}
	}()

	r.running.Store(true)
	defer r.running.Store(false)
	slog.Info("recording audio", "command", r.opener.Describe(), "chunk_size", r.chunkSize)

	var seq uint64
	for {
		buf := make([]byte, r.chunkSize)
		n, readErr := r.fill(ctx, stream, buf)
		if n > 0 {
			seq++
			c := Chunk{Seq: seq, Data: buf[:n], At: time.Now()}
			select {
			case out <- c:
				r.metrics.RecordChunk(ctx, n)
				r.metrics.QueueDepth.Add(ctx, 1)
			case <-ctx.Done():
				return nil
			}
		}
		if readErr == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			readErr = ErrStreamEnded
		}
		return r.fail(readErr)
	}
}

// fill reads until buf is full or the stream fails. A read returning no
// data and no error means the recorder has nothing yet; the reader yields
// for r.idle instead of spinning.
func (r *Reader) fill(ctx context.Context, s io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := s.Read(buf[n:])
		n += m
		if err != nil {
			if errors.Is(err, io.EOF) && n > 0 {
				return n, io.ErrUnexpectedEOF
			}
			return n, err
		}
		if m == 0 {
			t := time.NewTimer(r.idle)
			select {
			case <-ctx.Done():
				t.Stop()
				return n, ctx.Err()
			case <-t.C:
			}
		}
	}
	return n, nil
}

func (r *Reader) fail(err error) error {
	f := diag.New(diag.KindCapture, r.opener.Describe(), err)
	r.failure.Store(f)
	return f
}
