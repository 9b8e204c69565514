package hermes

// Subscription topics.
const (
	TopicAsrStartListening = "hermes/asr/startListening"
	TopicAsrStopListening  = "hermes/asr/stopListening"
	TopicSummaryOn         = "hermes/audioServer/toggleSummaryOn"
	TopicSummaryOff        = "hermes/audioServer/toggleSummaryOff"
	TopicGetDevices        = "rhasspy/audioServer/getDevices"
)

// Publication topics without a site component.
const (
	TopicDevices = "rhasspy/audioServer/devices"
	TopicError   = "hermes/error/audioServer"
)

// AudioFrameTopic is the topic carrying one WAV chunk for siteID.
func AudioFrameTopic(siteID string) string {
	return "hermes/audioServer/" + siteID + "/audioFrame"
}

// AudioSummaryTopic is the topic carrying voice activity summaries for siteID.
func AudioSummaryTopic(siteID string) string {
	return "hermes/audioServer/" + siteID + "/audioSummary"
}

