// Package app wires the hermesmic subsystems into a running service.
//
// New builds everything from the config: the bus connection, routing state,
// recorder, dispatcher, summary accumulator, control handler and HTTP
// surface. Run subscribes to control topics and supervises the reader,
// dispatcher and HTTP server until the context is done. Shutdown releases
// the bus connection and the UDP socket.
//
// For testing, inject doubles via functional options (WithBus, WithOpener,
// WithVAD, ...). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hermesmic/internal/capture"
	"github.com/MrWong99/hermesmic/internal/config"
	"github.com/MrWong99/hermesmic/internal/control"
	"github.com/MrWong99/hermesmic/internal/devices"
	"github.com/MrWong99/hermesmic/internal/diag"
	"github.com/MrWong99/hermesmic/internal/dispatch"
	"github.com/MrWong99/hermesmic/internal/health"
	"github.com/MrWong99/hermesmic/internal/hermes"
	"github.com/MrWong99/hermesmic/internal/hermes/mqtt"
	"github.com/MrWong99/hermesmic/internal/observe"
	"github.com/MrWong99/hermesmic/internal/resilience"
	"github.com/MrWong99/hermesmic/internal/route"
	"github.com/MrWong99/hermesmic/internal/summary"
	"github.com/MrWong99/hermesmic/pkg/audio"
	"github.com/MrWong99/hermesmic/pkg/provider/vad"
	"github.com/MrWong99/hermesmic/pkg/provider/vad/energy"
)

// Debug recording limits for POST /debug/record.
const (
	defaultRecordDuration = 3 * time.Second
	maxRecordDuration     = 30 * time.Second
)

// httpShutdownTimeout bounds the graceful stop of the HTTP server.
const httpShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg    *config.Config
	siteID string

	// Injected or built in New.
	bus     hermes.Client
	opener  capture.Opener
	engine  vad.Engine
	udp     dispatch.Sender
	runner  devices.Runner
	metrics *observe.Metrics

	state      *route.State
	pub        *resilience.GuardedPublisher
	reporter   *diag.Reporter
	reader     *capture.Reader
	dispatcher *dispatch.Dispatcher
	control    *control.Handler
	tap        *dispatch.TestCapture
	codec      audio.WAVCodec
	handler    http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBus injects a bus client instead of dialing the configured broker.
func WithBus(c hermes.Client) Option {
	return func(a *App) { a.bus = c }
}

// WithOpener injects the recorder instead of running record_command.
func WithOpener(o capture.Opener) Option {
	return func(a *App) { a.opener = o }
}

// WithVAD sets the voice activity engine. Default: the energy engine.
func WithVAD(e vad.Engine) Option {
	return func(a *App) { a.engine = e }
}

// WithUDPSender injects the UDP sink instead of opening a socket.
func WithUDPSender(s dispatch.Sender) Option {
	return func(a *App) { a.udp = s }
}

// WithDeviceRunner injects the process runner used for device listing and
// tests.
func WithDeviceRunner(r devices.Runner) Option {
	return func(a *App) { a.runner = r }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App. cfg must already be validated.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, siteID: cfg.OutputSiteID()}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	format := cfg.Microphone.Format()
	a.codec = audio.WAVCodec{Format: format}

	// ── 1. Bus ───────────────────────────────────────────────────────────
	if err := a.initBus(ctx); err != nil {
		return nil, fmt.Errorf("app: init bus: %w", err)
	}
	pub := resilience.NewGuardedPublisher(a.bus)
	a.pub = pub
	a.reporter = diag.NewReporter(pub, a.siteID, diag.WithMetrics(a.metrics))

	// ── 2. Routing + UDP ─────────────────────────────────────────────────
	a.state = route.NewState(cfg.UDP.Enabled())
	if err := a.initUDP(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init udp: %w", err)
	}

	// ── 3. Summaries ─────────────────────────────────────────────────────
	if a.engine == nil {
		slog.Info("no vad engine supplied, using energy classifier")
		a.engine = energy.New()
	}
	acc, err := summary.New(a.engine, summary.Config{
		Source:     format,
		Mode:       cfg.Summary.Mode(),
		SkipFrames: cfg.Summary.SkipFrames,
	})
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init summary: %w", err)
	}
	a.closers = append([]func() error{acc.Close}, a.closers...)

	// ── 4. Capture + dispatch ────────────────────────────────────────────
	if a.opener == nil {
		a.opener = capture.CommandOpener{Argv: cfg.Microphone.RecordCommand}
	}
	a.reader = capture.NewReader(a.opener, cfg.Microphone.ChunkSize, capture.WithMetrics(a.metrics))
	a.tap = &dispatch.TestCapture{}
	dopts := []dispatch.Option{
		dispatch.WithSummarizer(acc),
		dispatch.WithReporter(a.reporter),
		dispatch.WithTestCapture(a.tap),
		dispatch.WithMetrics(a.metrics),
	}
	if a.udp != nil {
		dopts = append(dopts, dispatch.WithUDP(a.udp))
	}
	a.dispatcher = dispatch.New(a.state, pub, a.codec, a.siteID, dopts...)

	// ── 5. Control ───────────────────────────────────────────────────────
	var lopts []devices.Option
	if a.runner != nil {
		lopts = append(lopts, devices.WithRunner(a.runner))
	}
	lister := devices.NewLister(cfg.Microphone.ListCommand, cfg.Microphone.TestCommand, lopts...)
	a.control = control.New(a.state, pub,
		control.WithSites(cfg.MQTT.SiteIDs),
		control.WithDeviceLister(lister),
		control.WithReporter(a.reporter),
		control.WithMetrics(a.metrics),
	)

	// ── 6. HTTP ──────────────────────────────────────────────────────────
	a.handler = a.buildHandler()

	slog.Info("hermesmic initialised",
		"site_id", a.siteID,
		"format", format.String(),
		"chunk_size", cfg.Microphone.ChunkSize,
		"udp", cfg.UDP.Enabled(),
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initBus(ctx context.Context) error {
	if a.bus == nil {
		c, err := mqtt.Dial(ctx, mqtt.Config{
			Host:     a.cfg.MQTT.Host,
			Port:     a.cfg.MQTT.Port,
			Username: a.cfg.MQTT.Username,
			Password: a.cfg.MQTT.Password,
			TLS:      a.cfg.MQTT.TLS,
			ClientID: a.cfg.MQTT.ClientID,
		})
		if err != nil {
			return err
		}
		a.bus = c
		slog.Info("connected to mqtt broker", "host", a.cfg.MQTT.Host, "port", a.cfg.MQTT.Port)
	}
	a.closers = append(a.closers, a.bus.Close)
	return nil
}

func (a *App) initUDP() error {
	if !a.cfg.UDP.Enabled() || a.udp != nil {
		return nil
	}
	s, err := dispatch.NewUDPSender(a.cfg.UDP.Addr())
	if err != nil {
		return err
	}
	slog.Info("udp output configured", "site_id", a.siteID, "destination", s.Destination())
	a.udp = s
	a.closers = append([]func() error{s.Close}, a.closers...)
	return nil
}

func (a *App) buildHandler() http.Handler {
	hh := health.New(
		health.WithChecker(health.BusChecker(a.bus.Connected)),
		health.WithChecker(health.CaptureChecker(a.reader.Running, a.captureFailure)),
		health.WithDetail("routing", func() any { return a.state.Snapshot() }),
		health.WithDetail("site_id", func() any { return a.siteID }),
		health.WithDetail("publish_breaker", func() any { return a.pub.State().String() }),
	)
	mux := http.NewServeMux()
	hh.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /debug/record", a.handleRecord)
	return observe.Middleware(a.metrics)(mux)
}

func (a *App) captureFailure() error {
	if f := a.reader.Failure(); f != nil {
		return f
	}
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run subscribes to the control topics and runs the audio path and the HTTP
// server until ctx is done. A capture failure is reported but does not end
// Run; control handling and health stay available.
func (a *App) Run(ctx context.Context) error {
	if err := a.control.Subscribe(ctx, a.bus); err != nil {
		return fmt.Errorf("app: subscribe control topics: %w", err)
	}

	queue := make(chan capture.Chunk, a.cfg.Microphone.QueueSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.reader.Run(gctx, queue); err != nil {
			a.reporter.ReportErr(gctx, diag.KindCapture, a.opener.Describe(), err)
		}
		return nil
	})
	g.Go(func() error {
		return a.dispatcher.Run(gctx, queue)
	})

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), httpShutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	slog.Info("hermesmic running", "site_id", a.siteID)
	return g.Wait()
}

// Handler returns the HTTP handler serving health, metrics and debug routes.
func (a *App) Handler() http.Handler { return a.handler }

// State returns the shared routing state.
func (a *App) State() *route.State { return a.state }

// ─── HTTP handlers ───────────────────────────────────────────────────────────

// handleRecord arms the test capture for ?duration= (default 3s) and
// returns what was recorded as one WAV file.
func (a *App) handleRecord(w http.ResponseWriter, r *http.Request) {
	d := defaultRecordDuration
	if v := r.URL.Query().Get("duration"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid duration", http.StatusBadRequest)
			return
		}
		d = min(parsed, maxRecordDuration)
	}
	if !a.reader.Running() {
		http.Error(w, "recorder not running", http.StatusServiceUnavailable)
		return
	}

	limit := a.codec.Format.BytesFor(int(d.Milliseconds())) + a.cfg.Microphone.ChunkSize
	if err := a.tap.Arm(limit); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	timer := time.NewTimer(d)
	select {
	case <-timer.C:
	case <-r.Context().Done():
		timer.Stop()
	}
	pcm := a.tap.Disarm()

	log := observe.Logger(r.Context())
	if len(pcm) == 0 {
		http.Error(w, "no audio captured", http.StatusServiceUnavailable)
		return
	}
	wav, err := a.codec.Encode(pcm)
	if err != nil {
		log.Error("encode test recording", "err", err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	log.Info("test recording served", "bytes", len(pcm), "duration", d)
	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown waits for in-flight device requests and releases resources. It
// respects the ctx deadline: if ctx expires first, remaining closers are
// skipped and the context error is returned. Call it after Run returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		done := make(chan struct{})
		go func() {
			a.control.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded waiting for device requests")
			shutdownErr = ctx.Err()
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
}
