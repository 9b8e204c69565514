package vad

// VADEvent represents a voice activity detection result for a single audio frame.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// Probability is the speech probability score (0.0–1.0). Binary
	// classifiers report 0 or 1.
	Probability float64
}

// IsSpeech reports whether the frame itself was classified as speech.
func (e VADEvent) IsSpeech() bool {
	return e.Type == VADSpeechStart || e.Type == VADSpeechContinue
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue

	// VADSpeechEnd indicates speech has just ended; the frame itself is silence.
	VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence
)

// String returns the human-readable name of the event type.
func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "SPEECH_START"
	case VADSpeechContinue:
		return "SPEECH_CONTINUE"
	case VADSpeechEnd:
		return "SPEECH_END"
	case VADSilence:
		return "SILENCE"
	default:
		return "UNKNOWN"
	}
}
