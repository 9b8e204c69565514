// Package audio holds the PCM primitives shared by the capture pipeline:
// the [Format] of a raw stream, conversion to the canonical analysis format,
// per-chunk WAV framing and energy measurement.
//
// All PCM handled here is little-endian, signed (except 8-bit, which follows
// the signed convention of the capture tools used with this service) and
// interleaved when there is more than one channel.
package audio

import "fmt"

// Format describes the sample layout of a raw PCM stream.
type Format struct {
	// SampleRate in Hz (e.g. 16000, 44100, 48000).
	SampleRate int

	// SampleWidth is the size of one sample in bytes (1, 2, 3 or 4).
	SampleWidth int

	// Channels is the number of interleaved channels.
	Channels int
}

// Canonical is the format required by the voice activity classifier:
// 16 kHz, 16-bit signed, mono.
var Canonical = Format{SampleRate: 16000, SampleWidth: 2, Channels: 1}

// FrameBytes returns the size in bytes of one multi-channel sample frame.
func (f Format) FrameBytes() int {
	return f.SampleWidth * f.Channels
}

// BytesFor returns the number of bytes holding ms milliseconds of audio.
func (f Format) BytesFor(ms int) int {
	return f.SampleRate * ms / 1000 * f.FrameBytes()
}

// Validate reports whether f describes a usable PCM layout.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.SampleWidth < 1 || f.SampleWidth > 4 {
		return fmt.Errorf("audio: sample width must be 1-4 bytes, got %d", f.SampleWidth)
	}
	if f.Channels < 1 {
		return fmt.Errorf("audio: channel count must be positive, got %d", f.Channels)
	}
	return nil
}

// String returns a human-readable form, e.g. "48000Hz stereo 16bit".
func (f Format) String() string {
	return fmt.Sprintf("%s %dbit", formatString(f.SampleRate, f.Channels), f.SampleWidth*8)
}
