package summary

import (
	"errors"
	"testing"

	"github.com/MrWong99/hermesmic/pkg/audio"
	"github.com/MrWong99/hermesmic/pkg/provider/vad"
	"github.com/MrWong99/hermesmic/pkg/provider/vad/energy"
	"github.com/MrWong99/hermesmic/pkg/provider/vad/mock"
)

// windowBytes is one 30 ms canonical window.
const windowBytes = 960

func silence() vad.VADEvent { return vad.VADEvent{Type: vad.VADSilence} }
func speech() vad.VADEvent  { return vad.VADEvent{Type: vad.VADSpeechStart, Probability: 1} }

func newAcc(t *testing.T, eng vad.Engine, skip int) *Accumulator {
	t.Helper()
	a, err := New(eng, Config{Source: audio.Canonical, Mode: 3, SkipFrames: skip})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	eng := &mock.Engine{}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative skip", Config{Source: audio.Canonical, SkipFrames: -1}},
		{"bad mode", Config{Source: audio.Canonical, Mode: 4}},
		{"bad source", Config{Source: audio.Format{SampleRate: 16000, SampleWidth: 5, Channels: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(eng, tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := New(nil, Config{Source: audio.Canonical}); err == nil {
		t.Error("expected error for nil engine")
	}

	a, err := New(eng, Config{Source: audio.Canonical})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.skip != DefaultSkipFrames {
		t.Errorf("skip = %d, want %d", a.skip, DefaultSkipFrames)
	}
}

func TestProcess_OneSummaryPerSkipInterval(t *testing.T) {
	t.Parallel()
	for _, k := range []int{1, 2, 3, 5, 8} {
		sess := &mock.Session{EventResult: silence()}
		a := newAcc(t, &mock.Engine{Session: sess}, k)

		const chunks = 40
		emitted := 0
		for i := range chunks {
			_, ok, err := a.Process(make([]byte, 2048))
			if err != nil {
				t.Fatalf("k=%d chunk %d: %v", k, i, err)
			}
			if ok {
				emitted++
				if (i+1)%k != 0 {
					t.Errorf("k=%d: summary emitted after chunk %d", k, i+1)
				}
			}
		}
		if want := chunks / k; emitted != want {
			t.Errorf("k=%d: emitted %d summaries, want %d", k, emitted, want)
		}
	}
}

func TestProcess_SpeechIsORedAcrossInterval(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{
		Events:      []vad.VADEvent{silence(), silence(), speech(), silence()},
		EventResult: silence(),
	}
	a := newAcc(t, &mock.Engine{Session: sess}, 4)

	var (
		got Summary
		ok  bool
	)
	for range 4 {
		var err error
		got, ok, err = a.Process(make([]byte, windowBytes))
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if !ok {
		t.Fatal("no summary after 4 chunks")
	}
	if !got.IsSpeech {
		t.Error("IsSpeech = false, want true")
	}

	// The flag resets for the next interval.
	for range 4 {
		got, ok, _ = a.Process(make([]byte, windowBytes))
	}
	if !ok || got.IsSpeech {
		t.Errorf("second interval = %+v, %v; want silent summary", got, ok)
	}
}

func TestProcess_CarriesPartialWindows(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{EventResult: silence()}
	a := newAcc(t, &mock.Engine{Session: sess}, 100)

	// 2048 bytes = 2 windows + 128 bytes carried.
	if _, _, err := a.Process(make([]byte, 2048)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := sess.FrameCount(); got != 2 {
		t.Errorf("frames = %d, want 2", got)
	}
	if got := a.Pending(); got != 128 {
		t.Errorf("pending = %d, want 128", got)
	}

	// 15 chunks of 2048 bytes are exactly 32 windows.
	for range 14 {
		if _, _, err := a.Process(make([]byte, 2048)); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if got := sess.FrameCount(); got != 32 {
		t.Errorf("frames = %d, want 32", got)
	}
	if got := a.Pending(); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
	for _, f := range sess.Frames {
		if len(f) != windowBytes {
			t.Fatalf("window of %d bytes, want %d", len(f), windowBytes)
		}
	}
}

func TestProcess_ConvertsToCanonical(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{EventResult: silence()}
	src := audio.Format{SampleRate: 48000, SampleWidth: 2, Channels: 2}
	a, err := New(&mock.Engine{Session: sess}, Config{Source: src, SkipFrames: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 30 ms of 48 kHz stereo is one canonical window.
	if _, _, err := a.Process(make([]byte, src.BytesFor(30))); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := sess.FrameCount(); got != 1 {
		t.Errorf("frames = %d, want 1", got)
	}
	if got := a.Pending(); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
}

func TestProcess_EnergyFromRawChunk(t *testing.T) {
	t.Parallel()
	a := newAcc(t, &mock.Engine{Session: &mock.Session{EventResult: silence()}}, 2)

	loud := make([]byte, 2048)
	for i := 0; i < len(loud); i += 4 {
		loud[i], loud[i+1] = 0x00, 0x10   // +4096
		loud[i+2], loud[i+3] = 0x00, 0xF0 // -4096
	}
	if _, ok, _ := a.Process(make([]byte, 2048)); ok {
		t.Fatal("summary emitted early")
	}
	got, ok, err := a.Process(loud)
	if err != nil || !ok {
		t.Fatalf("Process = %v, %v", ok, err)
	}
	if want := audio.DebiasedEnergy(loud, 2); got.DebiasedEnergy != want {
		t.Errorf("DebiasedEnergy = %d, want %d", got.DebiasedEnergy, want)
	}
}

func TestProcess_SilenceBelowWorkingThreshold(t *testing.T) {
	t.Parallel()
	a := newAcc(t, energy.New(), 5)

	var summaries []Summary
	for range 5 {
		s, ok, err := a.Process(make([]byte, 2048))
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if ok {
			summaries = append(summaries, s)
		}
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	if summaries[0].IsSpeech {
		t.Error("silence classified as speech")
	}
	if summaries[0].DebiasedEnergy >= audio.WorkingMicrophoneThreshold {
		t.Errorf("energy = %d, want < %d", summaries[0].DebiasedEnergy, audio.WorkingMicrophoneThreshold)
	}
}

func TestProcess_LazySessionReused(t *testing.T) {
	t.Parallel()
	eng := &mock.Engine{Session: &mock.Session{EventResult: silence()}}
	a := newAcc(t, eng, 5)
	if eng.CallCount() != 0 {
		t.Fatal("session created before first chunk")
	}
	for range 12 {
		_, _, _ = a.Process(make([]byte, 2048))
	}
	if got := eng.CallCount(); got != 1 {
		t.Errorf("NewSession calls = %d, want 1", got)
	}
	if got := eng.NewSessionCalls[0].Cfg; got.SampleRate != 16000 || got.FrameSizeMs != 30 || got.Mode != 3 {
		t.Errorf("session config = %+v", got)
	}
}

func TestProcess_FailureSuppressesIntervalOnly(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{EventResult: silence()}
	eng := &mock.Engine{NewSessionErr: errors.New("no vad")}
	a := newAcc(t, eng, 2)

	if _, _, err := a.Process(make([]byte, 2048)); err == nil {
		t.Fatal("expected session error")
	}

	eng.NewSessionErr = nil
	eng.Session = sess
	_, ok, err := a.Process(make([]byte, 2048))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ok {
		t.Error("summary emitted for failed interval")
	}

	for range 2 {
		_, ok, err = a.Process(make([]byte, 2048))
	}
	if err != nil || !ok {
		t.Errorf("next interval = %v, %v; want summary", ok, err)
	}
	if eng.CallCount() != 2 {
		t.Errorf("NewSession calls = %d, want 2 (failed attempt + retry)", eng.CallCount())
	}
}

func TestProcess_ClassifyError(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{ProcessFrameErr: errors.New("bad frame")}
	a := newAcc(t, &mock.Engine{Session: sess}, 1)

	_, ok, err := a.Process(make([]byte, 2048))
	if err == nil {
		t.Fatal("expected classify error")
	}
	if ok {
		t.Error("summary emitted despite classify error")
	}
	if got := a.Pending(); got != 2048-windowBytes {
		t.Errorf("pending = %d, want %d", got, 2048-windowBytes)
	}
}

func TestClose(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{EventResult: silence()}
	a := newAcc(t, &mock.Engine{Session: sess}, 1)
	if err := a.Close(); err != nil {
		t.Fatalf("Close before use: %v", err)
	}
	_, _, _ = a.Process(make([]byte, windowBytes))
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sess.CloseCallCount != 1 {
		t.Errorf("CloseCallCount = %d, want 1", sess.CloseCallCount)
	}
}
