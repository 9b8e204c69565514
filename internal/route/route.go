// Package route holds the shared routing state read by the dispatcher on
// every chunk and written by control event handling.
//
// The two flags are independent [atomic.Bool] values: reads on the audio
// path never take a lock, and a write is visible to the next read.
package route

import "sync/atomic"

// Sink is the destination of one framed chunk.
type Sink int

const (
	// Bus publishes the frame on the Hermes audioFrame topic.
	Bus Sink = iota
	// UDP sends the frame as one datagram.
	UDP
)

// String returns the metric label for s.
func (s Sink) String() string {
	if s == UDP {
		return "udp"
	}
	return "bus"
}

// State is the routing state. The zero value routes to [Bus] with summaries
// disabled and UDP unconfigured.
type State struct {
	udpConfigured bool
	udpEnabled    atomic.Bool
	summary       atomic.Bool
}

// NewState returns the startup state: UDP enabled exactly when a UDP
// destination is configured, summaries disabled.
func NewState(udpConfigured bool) *State {
	s := &State{udpConfigured: udpConfigured}
	s.udpEnabled.Store(udpConfigured)
	return s
}

// UDPConfigured reports whether a UDP destination exists.
func (s *State) UDPConfigured() bool { return s.udpConfigured }

// Sink returns where the next chunk goes. Without a UDP destination this is
// always [Bus].
func (s *State) Sink() Sink {
	if s.udpConfigured && s.udpEnabled.Load() {
		return UDP
	}
	return Bus
}

// SummaryEnabled reports whether audio summaries are published.
func (s *State) SummaryEnabled() bool { return s.summary.Load() }

// SetUDP enables or disables UDP output. It has no effect on [State.Sink]
// when UDP is not configured. It returns the previous value.
func (s *State) SetUDP(enabled bool) bool { return s.udpEnabled.Swap(enabled) }

// SetSummary enables or disables audio summaries and returns the previous
// value.
func (s *State) SetSummary(enabled bool) bool { return s.summary.Swap(enabled) }

// Snapshot is a point-in-time copy of [State] for health output and logs.
type Snapshot struct {
	Sink           string `json:"sink"`
	UDPConfigured  bool   `json:"udp_configured"`
	UDPEnabled     bool   `json:"udp_enabled"`
	SummaryEnabled bool   `json:"summary_enabled"`
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Sink:           s.Sink().String(),
		UDPConfigured:  s.udpConfigured,
		UDPEnabled:     s.udpEnabled.Load(),
		SummaryEnabled: s.summary.Load(),
	}
}
