// Package summary turns the raw capture stream into throttled voice activity
// reports.
//
// Each chunk is converted to the canonical analysis format (16 kHz, 16-bit,
// mono) and cut into 30 ms windows for the VAD engine. The interval's speech
// flag is the OR of every window classified since the last report. One
// [Summary] is produced per SkipFrames chunks; its energy is measured on the
// raw chunk that closed the interval, not on the converted windows.
package summary

import (
	"errors"
	"fmt"

	"github.com/MrWong99/hermesmic/pkg/audio"
	"github.com/MrWong99/hermesmic/pkg/provider/vad"
)

// WindowMs is the analysis window length.
const WindowMs = 30

// DefaultSkipFrames is the number of chunks per summary when none is configured.
const DefaultSkipFrames = 5

// Summary is one voice activity report.
type Summary struct {
	DebiasedEnergy int
	IsSpeech       bool
}

// Config parameterises an [Accumulator].
type Config struct {
	// Source is the capture format of the chunks passed to Process.
	Source audio.Format

	// Mode is the VAD aggressiveness in [0, 3].
	Mode int

	// SkipFrames is the number of chunks per summary. Zero means
	// [DefaultSkipFrames].
	SkipFrames int
}

// Accumulator is not safe for concurrent use; it is driven by the dispatcher
// goroutine only.
type Accumulator struct {
	engine    vad.Engine
	vadCfg    vad.Config
	source    audio.Format
	skip      int
	converter *audio.FormatConverter

	// session is created on the first Process call.
	session vad.SessionHandle

	carry     []byte
	speech    bool
	failed    bool
	remaining int
}

// New validates cfg and returns an Accumulator backed by engine. No VAD
// session is created until the first chunk arrives.
func New(engine vad.Engine, cfg Config) (*Accumulator, error) {
	if engine == nil {
		return nil, errors.New("summary: nil vad engine")
	}
	if cfg.SkipFrames == 0 {
		cfg.SkipFrames = DefaultSkipFrames
	}
	if cfg.SkipFrames < 1 {
		return nil, fmt.Errorf("summary: skip frames must be >= 1, got %d", cfg.SkipFrames)
	}
	if err := cfg.Source.Validate(); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	vc := vad.Config{
		SampleRate:  audio.Canonical.SampleRate,
		FrameSizeMs: WindowMs,
		Mode:        cfg.Mode,
	}
	if err := vc.Validate(); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	return &Accumulator{
		engine:    engine,
		vadCfg:    vc,
		source:    cfg.Source,
		skip:      cfg.SkipFrames,
		converter: audio.NewCanonicalConverter(cfg.Source),
		remaining: cfg.SkipFrames,
	}, nil
}

// Process accumulates chunk. When chunk closes a skip interval, ok is true
// and s is the interval's report. A non-nil error means part of the chunk
// could not be classified; the interval it belongs to produces no summary,
// but counting continues so the next interval reports normally.
func (a *Accumulator) Process(chunk []byte) (s Summary, ok bool, err error) {
	err = a.classify(chunk)
	if err != nil {
		a.failed = true
	}

	a.remaining--
	if a.remaining > 0 {
		return Summary{}, false, err
	}

	s = Summary{
		DebiasedEnergy: audio.DebiasedEnergy(chunk, a.source.SampleWidth),
		IsSpeech:       a.speech,
	}
	ok = !a.failed
	a.speech = false
	a.failed = false
	a.remaining = a.skip
	return s, ok, err
}

// Pending returns the number of converted bytes waiting for a full window.
func (a *Accumulator) Pending() int { return len(a.carry) }

// Close releases the VAD session, if one was created.
func (a *Accumulator) Close() error {
	if a.session == nil {
		return nil
	}
	err := a.session.Close()
	a.session = nil
	return err
}

func (a *Accumulator) classify(chunk []byte) error {
	if a.session == nil {
		sess, err := a.engine.NewSession(a.vadCfg)
		if err != nil {
			return fmt.Errorf("summary: create vad session: %w", err)
		}
		a.session = sess
	}

	// A short final chunk may end mid-frame.
	whole := len(chunk) - len(chunk)%a.source.FrameBytes()
	pcm, err := a.converter.Convert(chunk[:whole])
	if err != nil {
		return fmt.Errorf("summary: convert: %w", err)
	}
	a.carry = append(a.carry, pcm...)

	win := a.vadCfg.FrameBytes()
	off := 0
	for len(a.carry)-off >= win {
		ev, err := a.session.ProcessFrame(a.carry[off : off+win])
		off += win
		if err != nil {
			a.compact(off)
			return fmt.Errorf("summary: classify window: %w", err)
		}
		if ev.IsSpeech() {
			a.speech = true
		}
	}
	a.compact(off)
	return nil
}

// compact drops the first n bytes of the carry buffer.
func (a *Accumulator) compact(n int) {
	if n == 0 {
		return
	}
	rest := copy(a.carry, a.carry[n:])
	a.carry = a.carry[:rest]
}
