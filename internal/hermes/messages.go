package hermes

import (
	"encoding/json"
	"fmt"
)

// DeviceModeInput marks a capture device.
const DeviceModeInput = "input"

// AudioSummary reports the voice activity of one summary interval.
type AudioSummary struct {
	DebiasedEnergy int  `json:"debiasedEnergy"`
	IsSpeech       bool `json:"isSpeech"`
}

// AudioDevice describes one capture device.
type AudioDevice struct {
	Mode        string `json:"mode"`
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	// Working is nil when the device was not tested.
	Working *bool `json:"working"`
}

// AudioDevices is the reply to [GetDevices].
type AudioDevices struct {
	Devices []AudioDevice `json:"devices"`
	ID      string        `json:"id,omitempty"`
	SiteID  string        `json:"siteId"`
}

// AudioServerError is a diagnostic event.
type AudioServerError struct {
	Error   string `json:"error"`
	Context string `json:"context,omitempty"`
	SiteID  string `json:"siteId"`
}

// Message is an incoming message the service reacts to. The set of
// implementations is closed: [StartListening], [StopListening],
// [SummaryToggle] and [GetDevices].
type Message interface {
	Site() string
	isMessage()
}

// StartListening is sent when a recognizer begins listening on a site.
type StartListening struct {
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId,omitempty"`
}

// StopListening is sent when a recognizer stops listening on a site.
type StopListening struct {
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId,omitempty"`
}

// SummaryToggle turns audio summaries on or off for a site. Enabled is
// derived from the topic, not the payload.
type SummaryToggle struct {
	SiteID  string `json:"siteId"`
	Enabled bool   `json:"-"`
}

// GetDevices requests the list of capture devices.
type GetDevices struct {
	Modes  []string `json:"modes,omitempty"`
	ID     string   `json:"id,omitempty"`
	SiteID string   `json:"siteId"`
	Test   bool     `json:"test,omitempty"`
}

// WantsInput reports whether the request covers capture devices.
func (g GetDevices) WantsInput() bool {
	if len(g.Modes) == 0 {
		return true
	}
	for _, m := range g.Modes {
		if m == DeviceModeInput {
			return true
		}
	}
	return false
}

func (m StartListening) Site() string { return m.SiteID }
func (m StopListening) Site() string  { return m.SiteID }
func (m SummaryToggle) Site() string  { return m.SiteID }
func (m GetDevices) Site() string     { return m.SiteID }

func (StartListening) isMessage() {}
func (StopListening) isMessage()  {}
func (SummaryToggle) isMessage()  {}
func (GetDevices) isMessage()     {}

// ParseMessage decodes payload according to topic. Missing site ids default
// to "default" as in the Hermes protocol.
func ParseMessage(topic string, payload []byte) (Message, error) {
	var (
		msg Message
		err error
	)
	switch topic {
	case TopicAsrStartListening:
		var m StartListening
		err = decode(payload, &m)
		m.SiteID = siteOrDefault(m.SiteID)
		msg = m
	case TopicAsrStopListening:
		var m StopListening
		err = decode(payload, &m)
		m.SiteID = siteOrDefault(m.SiteID)
		msg = m
	case TopicSummaryOn, TopicSummaryOff:
		var m SummaryToggle
		err = decode(payload, &m)
		m.SiteID = siteOrDefault(m.SiteID)
		m.Enabled = topic == TopicSummaryOn
		msg = m
	case TopicGetDevices:
		var m GetDevices
		err = decode(payload, &m)
		m.SiteID = siteOrDefault(m.SiteID)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	if err != nil {
		return nil, fmt.Errorf("hermes: decode %q: %w", topic, err)
	}
	return msg, nil
}

// Marshal encodes a payload struct as JSON.
func Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("hermes: encode %T: %w", v, err)
	}
	return b, nil
}

func decode(payload []byte, v any) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, v)
}

func siteOrDefault(site string) string {
	if site == "" {
		return "default"
	}
	return site
}
