// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (WebRTC VAD, an energy
// threshold, or a custom model) and surfaces it as a stateful, per-stream
// session. Each session keeps its own detection state so that independent
// streams never influence each other.
//
// VAD is synchronous: ProcessFrame returns immediately with a detection
// result, making it suitable for the capture loop that produces audio
// summaries.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned by engines that cannot run in the current build
// (for example the WebRTC engine when cgo is disabled).
var ErrUnavailable = errors.New("vad: engine unavailable in this build")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame. WebRTC VAD accepts 8000, 16000, 32000 and 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. WebRTC
	// VAD operates on 10, 20 or 30 ms frames. ProcessFrame returns an error if
	// the supplied frame does not match this size.
	FrameSizeMs int

	// Mode is the aggressiveness of the detector in the range [0, 3]. Higher
	// modes filter out more non-speech at the cost of missing quiet speech.
	Mode int
}

// FrameBytes returns the size in bytes of one 16-bit mono frame for cfg.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// Validate reports whether cfg is usable by the built-in engines.
func (c Config) Validate() error {
	switch c.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return fmt.Errorf("vad: unsupported sample rate %d", c.SampleRate)
	}
	switch c.FrameSizeMs {
	case 10, 20, 30:
	default:
		return fmt.Errorf("vad: unsupported frame size %d ms", c.FrameSizeMs)
	}
	if c.Mode < 0 || c.Mode > 3 {
		return fmt.Errorf("vad: mode %d is out of range [0, 3]", c.Mode)
	}
	return nil
}

// SessionHandle represents an active VAD session for a single audio stream. It is
// an interface so that test code can supply mock implementations without a live
// engine. Each session maintains its own detection state; Reset clears this state
// without closing the session.
type SessionHandle interface {
	// ProcessFrame analyses a single audio frame and returns the detection result.
	// The frame must be raw little-endian 16-bit mono PCM at the SampleRate and
	// FrameSizeMs configured when the session was created.
	//
	// This method is called synchronously in the audio pipeline loop; it must
	// not block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears all accumulated detection state without closing the session.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid or the engine cannot
	// allocate resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}

// Tracker turns a stream of per-frame speech decisions into [VADEvent]
// transitions. Stateless classifiers embed it to report start/continue/end.
type Tracker struct {
	inSpeech bool
}

// Next returns the event for a frame whose raw decision is speech.
func (t *Tracker) Next(speech bool, probability float64) VADEvent {
	var typ VADEventType
	switch {
	case speech && !t.inSpeech:
		typ = VADSpeechStart
	case speech:
		typ = VADSpeechContinue
	case t.inSpeech:
		typ = VADSpeechEnd
	default:
		typ = VADSilence
	}
	t.inSpeech = speech
	return VADEvent{Type: typ, Probability: probability}
}

// Reset forgets the previous decision.
func (t *Tracker) Reset() {
	t.inSpeech = false
}
