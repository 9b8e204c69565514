package audio

import "math"

// WorkingMicrophoneThreshold is the debiased energy above which a recording
// is assumed to contain real audio rather than a dead or muted input.
const WorkingMicrophoneThreshold = 30

// RMS returns the root mean square of the signed samples in pcm, truncated to
// an integer. Trailing bytes that do not form a whole sample are ignored.
func RMS(pcm []byte, width int) int {
	if width < 1 || width > 4 {
		return 0
	}
	n := len(pcm) / width
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := range n {
		v := float64(sampleAt(pcm, width, i))
		sumSquares += v * v
	}
	return int(math.Sqrt(sumSquares / float64(n)))
}

// DebiasedEnergy is a coarse loudness measure used to tell speech or
// background noise apart from a silent input. The RMS of the chunk is
// subtracted from every sample (saturating at the sample range) and the RMS
// of the shifted signal is returned.
func DebiasedEnergy(pcm []byte, width int) int {
	if width < 1 || width > 4 {
		return 0
	}
	n := len(pcm) / width
	if n == 0 {
		return 0
	}
	lo, hi := sampleBounds(width)
	bias := -int64(RMS(pcm, width))
	if bias < lo {
		bias = lo
	}

	shifted := make([]byte, n*width)
	for i := range n {
		v := sampleAt(pcm, width, i) + bias
		v = max(lo, min(hi, v))
		putSample(shifted, width, i, v)
	}
	return RMS(shifted, width)
}
