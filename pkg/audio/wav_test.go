package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/hermesmic/pkg/audio"
)

func TestWAVCodec_EncodeHeader(t *testing.T) {
	codec := audio.WAVCodec{Format: audio.Format{SampleRate: 16000, SampleWidth: 2, Channels: 1}}
	pcm := make([]byte, 2048)
	wav, err := codec.Encode(pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Errorf("bad container markers: %q", wav[:44])
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Errorf("riff size = %d, want %d", got, 36+len(pcm))
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Errorf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
}

func TestWAVCodec_RoundTrip(t *testing.T) {
	f := audio.Format{SampleRate: 44100, SampleWidth: 2, Channels: 2}
	codec := audio.WAVCodec{Format: f}
	pcm := samplesToBytes([]int16{1, -2, 3, -4, 5, -6})

	wav, err := codec.Encode(pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	gotFormat, gotPCM, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if gotFormat != f {
		t.Errorf("format = %+v, want %+v", gotFormat, f)
	}
	if !bytes.Equal(gotPCM, pcm) {
		t.Errorf("payload mismatch")
	}
}

func TestWAVCodec_EmptyChunk(t *testing.T) {
	codec := audio.WAVCodec{Format: audio.Canonical}
	if _, err := codec.Encode(nil); !errors.Is(err, audio.ErrEmptyChunk) {
		t.Errorf("Encode(nil) err = %v, want ErrEmptyChunk", err)
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	if _, _, err := audio.DecodeWAV([]byte("short")); err == nil {
		t.Error("expected error for short data")
	}
	bad := make([]byte, 44)
	copy(bad, "RIFX")
	if _, _, err := audio.DecodeWAV(bad); err == nil {
		t.Error("expected error for missing RIFF marker")
	}
}
