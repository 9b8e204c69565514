// Package energy provides a pure-Go [vad.Engine] that classifies frames by
// their RMS level. It has no native dependencies and serves builds where the
// WebRTC detector is unavailable.
package energy

import (
	"fmt"

	"github.com/MrWong99/hermesmic/pkg/audio"
	"github.com/MrWong99/hermesmic/pkg/provider/vad"
)

// modeThresholds maps the aggressiveness mode to the int16 RMS level a frame
// must reach to count as speech.
var modeThresholds = [4]int{300, 450, 600, 800}

// Engine creates energy-threshold sessions. The zero value is ready to use.
type Engine struct{}

// New returns an energy VAD engine.
func New() *Engine {
	return &Engine{}
}

// NewSession validates cfg and returns a session using the threshold of cfg.Mode.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &session{cfg: cfg, threshold: modeThresholds[cfg.Mode]}, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct {
	cfg       vad.Config
	threshold int
	tracker   vad.Tracker
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if want := s.cfg.FrameBytes(); len(frame) != want {
		return vad.VADEvent{}, fmt.Errorf("energy vad: frame is %d bytes, want %d", len(frame), want)
	}
	level := audio.RMS(frame, 2)
	p := min(1, float64(level)/float64(2*s.threshold))
	return s.tracker.Next(level >= s.threshold, p), nil
}

func (s *session) Reset() { s.tracker.Reset() }

func (s *session) Close() error { return nil }
