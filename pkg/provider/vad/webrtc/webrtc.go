//go:build cgo

// Package webrtc provides a [vad.Engine] backed by the WebRTC voice activity
// detector (github.com/maxhawkins/go-webrtcvad). It requires cgo; builds
// without cgo get a stub whose NewSession returns [vad.ErrUnavailable].
package webrtc

import (
	"errors"
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/hermesmic/pkg/provider/vad"
)

// Engine creates WebRTC VAD sessions. The zero value is ready to use.
type Engine struct{}

// New returns a WebRTC VAD engine.
func New() *Engine {
	return &Engine{}
}

// Available reports whether the WebRTC detector is compiled in.
func Available() bool { return true }

// NewSession allocates a detector configured with cfg.Mode.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	det, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create detector: %w", err)
	}
	if err := det.SetMode(cfg.Mode); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode %d: %w", cfg.Mode, err)
	}
	return &session{det: det, cfg: cfg}, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct {
	mu      sync.Mutex
	det     *webrtcvad.VAD
	cfg     vad.Config
	tracker vad.Tracker
	closed  bool
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, errors.New("webrtc vad: session closed")
	}
	if want := s.cfg.FrameBytes(); len(frame) != want {
		return vad.VADEvent{}, fmt.Errorf("webrtc vad: frame is %d bytes, want %d", len(frame), want)
	}
	active, err := s.det.Process(s.cfg.SampleRate, frame)
	if err != nil {
		return vad.VADEvent{}, fmt.Errorf("webrtc vad: process: %w", err)
	}
	var p float64
	if active {
		p = 1
	}
	return s.tracker.Next(active, p), nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.Reset()
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.det = nil
	return nil
}
