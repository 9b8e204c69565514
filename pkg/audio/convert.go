package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// FormatConverter converts raw PCM chunks from a fixed source format to
// [Canonical]. It logs a warning on the first chunk that needs conversion.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Source Format

	warnedMismatch sync.Once
	resampler      *Resampler
}

// NewCanonicalConverter returns a converter from src to [Canonical].
func NewCanonicalConverter(src Format) *FormatConverter {
	return &FormatConverter{Source: src}
}

// Convert converts pcm from the source format to [Canonical]. If the source
// already is canonical, pcm is returned unchanged (zero allocation).
// Successive calls are treated as one continuous stream.
// Conversion order: sample width, then channel mixdown, then resampling, so
// the resampler only ever sees mono 16-bit data.
func (c *FormatConverter) Convert(pcm []byte) ([]byte, error) {
	if err := c.Source.Validate(); err != nil {
		return nil, err
	}
	if fb := c.Source.FrameBytes(); len(pcm)%fb != 0 {
		return nil, fmt.Errorf("audio: %d bytes is not a whole number of %d-byte frames", len(pcm), fb)
	}
	if c.Source == Canonical {
		return pcm, nil
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("capture format is not canonical, converting for voice activity detection",
			"from", c.Source.String(),
			"to", Canonical.String(),
		)
	})

	if c.resampler == nil {
		c.resampler = NewResampler(c.Source.SampleRate, Canonical.SampleRate)
	}
	out := ToInt16(pcm, c.Source.SampleWidth)
	out = DownmixToMono(out, c.Source.Channels)
	return c.resampler.Process(out), nil
}

// DownmixToMono averages all channels of each interleaved int16 frame.
// Uses int32 arithmetic to prevent overflow; the mean of int16 values always
// fits back into int16.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := channels * 2
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		base := i * frameBytes
		for ch := range channels {
			off := base + ch*2
			sum += int32(int16(pcm[off]) | int16(pcm[off+1])<<8)
		}
		avg := int16(sum / int32(channels))
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// Resampler converts a stream of 16-bit little-endian mono PCM chunks from
// one sample rate to another using linear interpolation. The interpolation
// phase and the last input sample carry over between calls, so a stream cut
// into chunks resamples to the same output as the stream in one piece.
// A Resampler is not safe for concurrent use.
type Resampler struct {
	src, dst int64

	// pos is the next output position in source frames scaled by dst,
	// relative to the first frame of the next chunk. It lies in (-dst, src].
	pos  int64
	prev int16
}

// NewResampler returns a Resampler from srcRate to dstRate. If either rate is
// not positive or both are equal, Process returns its input unchanged.
func NewResampler(srcRate, dstRate int) *Resampler {
	src, dst := int64(srcRate), int64(dstRate)
	if src > 0 && dst > 0 {
		g := gcd(src, dst)
		src, dst = src/g, dst/g
	}
	return &Resampler{src: src, dst: dst}
}

// Process resamples the next chunk of the stream.
func (r *Resampler) Process(pcm []byte) []byte {
	if r.src <= 0 || r.dst <= 0 || r.src == r.dst {
		return pcm
	}
	n := int64(len(pcm) / 2)
	if n == 0 {
		return nil
	}
	at := func(i int64) int64 {
		if i < 0 {
			return int64(r.prev)
		}
		return int64(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}

	out := make([]byte, 0, 2*(n*r.dst/r.src+1))
	for last := (n - 1) * r.dst; r.pos <= last; r.pos += r.src {
		i, frac := r.pos/r.dst, r.pos%r.dst
		if frac < 0 {
			i, frac = i-1, frac+r.dst
		}
		v := at(i)
		if frac > 0 {
			v = (v*(r.dst-frac) + at(i+1)*frac) / r.dst
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(int16(v)))
	}
	r.pos -= n * r.dst
	r.prev = int16(at(n - 1))
	return out
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
