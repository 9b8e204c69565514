package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrEmptyChunk is returned by [WAVCodec.Encode] for a zero-length chunk.
var ErrEmptyChunk = errors.New("audio: empty chunk")

// wavHeaderSize is the size of the canonical 44-byte PCM WAV header.
const wavHeaderSize = 44

// wavHeader is the RIFF/WAVE header of a single-chunk PCM file.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // payload bytes
}

// WAVCodec wraps raw PCM chunks into standalone WAV containers. Every
// encoded chunk carries its own header, so each frame is independently
// decodable. The zero value is not usable; construct with a valid [Format].
type WAVCodec struct {
	Format Format
}

// Encode returns pcm wrapped in a WAV container describing exactly pcm.
// A zero-length chunk yields [ErrEmptyChunk].
func (c WAVCodec) Encode(pcm []byte) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyChunk
	}
	if err := c.Format.Validate(); err != nil {
		return nil, err
	}

	bits := uint16(c.Format.SampleWidth * 8)
	channels := uint16(c.Format.Channels)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(c.Format.SampleRate),
		ByteRate:      uint32(c.Format.SampleRate) * uint32(channels) * uint32(bits) / 8,
		BlockAlign:    channels * bits / 8,
		BitsPerSample: bits,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("audio: write wav header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// DecodeWAV parses a single-chunk PCM WAV produced by [WAVCodec.Encode] and
// returns its format and payload.
func DecodeWAV(data []byte) (Format, []byte, error) {
	if len(data) < wavHeaderSize {
		return Format{}, nil, fmt.Errorf("audio: wav data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}

	var header wavHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return Format{}, nil, fmt.Errorf("audio: read wav header: %w", err)
	}
	switch {
	case string(header.ChunkID[:]) != "RIFF":
		return Format{}, nil, errors.New("audio: invalid wav: missing RIFF header")
	case string(header.Format[:]) != "WAVE":
		return Format{}, nil, errors.New("audio: invalid wav: missing WAVE format")
	case string(header.Subchunk1ID[:]) != "fmt ":
		return Format{}, nil, errors.New("audio: invalid wav: missing fmt chunk")
	case string(header.Subchunk2ID[:]) != "data":
		return Format{}, nil, errors.New("audio: invalid wav: missing data chunk")
	case header.AudioFormat != 1:
		return Format{}, nil, fmt.Errorf("audio: unsupported wav format %d (only PCM)", header.AudioFormat)
	}

	end := wavHeaderSize + int(header.Subchunk2Size)
	if end > len(data) {
		return Format{}, nil, fmt.Errorf("audio: wav data chunk truncated: header says %d bytes, have %d", header.Subchunk2Size, len(data)-wavHeaderSize)
	}

	f := Format{
		SampleRate:  int(header.SampleRate),
		SampleWidth: int(header.BitsPerSample / 8),
		Channels:    int(header.NumChannels),
	}
	return f, data[wavHeaderSize:end], nil
}
