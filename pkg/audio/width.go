package audio

// ToInt16 converts little-endian signed PCM of the given sample width to
// 16-bit samples. Wider samples keep their two most significant bytes;
// 8-bit samples are scaled up. Width 2 returns pcm unchanged.
func ToInt16(pcm []byte, width int) []byte {
	switch width {
	case 2:
		return pcm
	case 1:
		out := make([]byte, len(pcm)*2)
		for i, b := range pcm {
			s := int16(int8(b)) << 8
			out[i*2] = byte(s)
			out[i*2+1] = byte(s >> 8)
		}
		return out
	case 3, 4:
		n := len(pcm) / width
		out := make([]byte, n*2)
		for i := range n {
			msb := i*width + width - 1
			out[i*2] = pcm[msb-1]
			out[i*2+1] = pcm[msb]
		}
		return out
	}
	return nil
}

// sampleAt decodes the i-th signed sample of the given width as an int64.
func sampleAt(pcm []byte, width, i int) int64 {
	off := i * width
	switch width {
	case 1:
		return int64(int8(pcm[off]))
	case 2:
		return int64(int16(uint16(pcm[off]) | uint16(pcm[off+1])<<8))
	case 3:
		v := int32(pcm[off]) | int32(pcm[off+1])<<8 | int32(pcm[off+2])<<16
		return int64(v<<8) >> 8
	default:
		return int64(int32(uint32(pcm[off]) | uint32(pcm[off+1])<<8 | uint32(pcm[off+2])<<16 | uint32(pcm[off+3])<<24))
	}
}

// putSample encodes v as a signed sample of the given width at index i.
func putSample(pcm []byte, width, i int, v int64) {
	off := i * width
	for b := range width {
		pcm[off+b] = byte(v >> (8 * b))
	}
}

// sampleBounds returns the inclusive range of a signed sample of width bytes.
func sampleBounds(width int) (lo, hi int64) {
	hi = int64(1)<<(8*width-1) - 1
	return -hi - 1, hi
}
