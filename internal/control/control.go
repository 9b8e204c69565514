// Package control reacts to Hermes control messages: recognizer listening
// sessions toggle UDP output, summary toggles switch voice activity reports,
// and device requests are answered with the capture device list.
//
// Every event is independent and idempotent. Routing changes are written to
// the shared [route.State] and take effect on the dispatcher's next chunk.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/hermesmic/internal/devices"
	"github.com/MrWong99/hermesmic/internal/diag"
	"github.com/MrWong99/hermesmic/internal/hermes"
	"github.com/MrWong99/hermesmic/internal/observe"
	"github.com/MrWong99/hermesmic/internal/route"
)

// Event names used for logs and the control events metric.
const (
	EventStartListening = "start_listening"
	EventStopListening  = "stop_listening"
	EventSummaryOn      = "summary_on"
	EventSummaryOff     = "summary_off"
	EventGetDevices     = "get_devices"
)

// DeviceLister enumerates capture devices.
type DeviceLister interface {
	List(ctx context.Context, test bool) ([]devices.Device, error)
}

// Reporter receives malformed control messages.
type Reporter interface {
	ReportErr(ctx context.Context, k diag.Kind, stage string, err error)
}

// Handler dispatches control messages.
type Handler struct {
	state   *route.State
	pub     hermes.Publisher
	sites   hermes.SiteFilter
	lister  DeviceLister
	rep     Reporter
	metrics *observe.Metrics

	mu   sync.Mutex
	base context.Context
	wg   sync.WaitGroup
}

// Option configures a [Handler].
type Option func(*Handler)

// WithSites restricts handling to messages for the given sites. An empty
// list accepts all sites.
func WithSites(sites []string) Option {
	return func(h *Handler) { h.sites = hermes.SiteFilter(sites) }
}

// WithDeviceLister sets the device source for getDevices requests. Without
// one, requests are answered with an empty list.
func WithDeviceLister(l DeviceLister) Option {
	return func(h *Handler) { h.lister = l }
}

// WithReporter sets where malformed messages are reported. Default: a
// [diag.Reporter] publishing on the handler's publisher.
func WithReporter(r Reporter) Option {
	return func(h *Handler) { h.rep = r }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// New returns a Handler mutating state and replying on pub.
func New(state *route.State, pub hermes.Publisher, opts ...Option) *Handler {
	h := &Handler{state: state, pub: pub, base: context.Background()}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	if h.rep == nil {
		site := "default"
		if len(h.sites) > 0 {
			site = h.sites[0]
		}
		h.rep = diag.NewReporter(pub, site, diag.WithMetrics(h.metrics))
	}
	return h
}

// Topics returns the topics the handler needs. Listening session events are
// only of interest when a UDP destination is configured.
func (h *Handler) Topics() []string {
	topics := []string{hermes.TopicSummaryOn, hermes.TopicSummaryOff, hermes.TopicGetDevices}
	if h.state.UDPConfigured() {
		topics = append(topics, hermes.TopicAsrStartListening, hermes.TopicAsrStopListening)
	}
	return topics
}

// Subscribe registers the handler on sub. ctx becomes the parent of the
// work started by incoming messages.
func (h *Handler) Subscribe(ctx context.Context, sub hermes.Subscriber) error {
	h.mu.Lock()
	h.base = ctx
	h.mu.Unlock()
	return sub.Subscribe(ctx, h.HandleRaw, h.Topics()...)
}

// HandleRaw is the [hermes.Handler] for all control topics.
func (h *Handler) HandleRaw(topic string, payload []byte) {
	ctx := h.baseContext()
	msg, err := hermes.ParseMessage(topic, payload)
	if errors.Is(err, hermes.ErrUnknownTopic) {
		observe.Logger(ctx).Warn("ignoring message on unexpected topic", "topic", topic)
		return
	}
	if err != nil {
		h.rep.ReportErr(ctx, diag.KindControl, topic, err)
		return
	}
	h.Handle(ctx, msg)
}

// Handle applies one parsed message.
func (h *Handler) Handle(ctx context.Context, msg hermes.Message) {
	if !h.sites.Accepts(msg.Site()) {
		observe.Logger(ctx).Debug("ignoring message for other site", "site_id", msg.Site())
		return
	}

	switch m := msg.(type) {
	case hermes.StartListening:
		h.setUDP(ctx, EventStartListening, m.SiteID, false)
	case hermes.StopListening:
		h.setUDP(ctx, EventStopListening, m.SiteID, true)
	case hermes.SummaryToggle:
		event := EventSummaryOff
		if m.Enabled {
			event = EventSummaryOn
		}
		ctx, span := observe.StartSiteSpan(ctx, "control."+event, m.SiteID)
		prev := h.state.SetSummary(m.Enabled)
		span.End()
		h.metrics.RecordControlEvent(ctx, event)
		observe.Logger(ctx).Debug("summary toggled", "enabled", m.Enabled, "was", prev)
	case hermes.GetDevices:
		h.metrics.RecordControlEvent(ctx, EventGetDevices)
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.replyDevices(ctx, m)
		}()
	default:
		observe.Logger(ctx).Warn("unexpected control message", "type", fmt.Sprintf("%T", m))
	}
}

// Wait blocks until all in-flight device requests have been answered.
func (h *Handler) Wait() { h.wg.Wait() }

func (h *Handler) setUDP(ctx context.Context, event, siteID string, enabled bool) {
	if !h.state.UDPConfigured() {
		return
	}
	ctx, span := observe.StartSiteSpan(ctx, "control."+event, siteID)
	defer span.End()
	prev := h.state.SetUDP(enabled)
	h.metrics.RecordControlEvent(ctx, event)
	if prev != enabled {
		observe.Logger(ctx).Debug("udp output toggled", "enabled", enabled)
	}
}

func (h *Handler) replyDevices(ctx context.Context, req hermes.GetDevices) {
	ctx, span := observe.StartSiteSpan(ctx, "control.get_devices", req.SiteID)
	defer span.End()
	log := observe.Logger(ctx)

	if !req.WantsInput() {
		log.Debug("not a request for input devices", "modes", req.Modes)
		return
	}

	reply := hermes.AudioDevices{Devices: []hermes.AudioDevice{}, ID: req.ID, SiteID: req.SiteID}
	if h.lister == nil {
		log.Warn("no device list command, cannot list microphones")
	} else {
		devs, err := h.lister.List(ctx, req.Test)
		if err != nil {
			if errors.Is(err, devices.ErrNoListCommand) {
				log.Warn("no device list command, cannot list microphones")
			} else {
				log.Error("list devices", "err", err)
			}
		}
		for _, d := range devs {
			reply.Devices = append(reply.Devices, hermes.AudioDevice{
				Mode:        hermes.DeviceModeInput,
				ID:          d.Name,
				Name:        d.Name,
				Description: d.Description,
				Working:     d.Working,
			})
		}
	}

	payload, err := hermes.Marshal(reply)
	if err != nil {
		log.Error("encode device list", "err", err)
		return
	}
	if err := h.pub.Publish(ctx, hermes.TopicDevices, payload); err != nil {
		log.Warn("publish device list", "err", err)
		return
	}
	log.Debug("device list published", "devices", len(reply.Devices), "request_id", req.ID)
}

func (h *Handler) baseContext() context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.base
}
