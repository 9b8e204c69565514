package hermes_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/MrWong99/hermesmic/internal/hermes"
)

func TestParseMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		topic   string
		payload string
		want    hermes.Message
	}{
		{
			name:    "start listening",
			topic:   hermes.TopicAsrStartListening,
			payload: `{"siteId":"kitchen","sessionId":"s1"}`,
			want:    hermes.StartListening{SiteID: "kitchen", SessionID: "s1"},
		},
		{
			name:    "stop listening default site",
			topic:   hermes.TopicAsrStopListening,
			payload: `{}`,
			want:    hermes.StopListening{SiteID: "default"},
		},
		{
			name:    "summary on",
			topic:   hermes.TopicSummaryOn,
			payload: `{"siteId":"default"}`,
			want:    hermes.SummaryToggle{SiteID: "default", Enabled: true},
		},
		{
			name:    "summary off empty payload",
			topic:   hermes.TopicSummaryOff,
			payload: ``,
			want:    hermes.SummaryToggle{SiteID: "default", Enabled: false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := hermes.ParseMessage(tt.topic, []byte(tt.payload))
			if err != nil {
				t.Fatalf("ParseMessage: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseMessage_GetDevices(t *testing.T) {
	t.Parallel()
	msg, err := hermes.ParseMessage(hermes.TopicGetDevices, []byte(`{"modes":["output"],"id":"r1","siteId":"default","test":true}`))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	req, ok := msg.(hermes.GetDevices)
	if !ok {
		t.Fatalf("got %T, want GetDevices", msg)
	}
	if req.ID != "r1" || !req.Test {
		t.Errorf("unexpected request %+v", req)
	}
	if req.WantsInput() {
		t.Error("output-only request should not want input devices")
	}
	if !(hermes.GetDevices{}).WantsInput() {
		t.Error("request without modes should want input devices")
	}
}

func TestParseMessage_Errors(t *testing.T) {
	t.Parallel()
	if _, err := hermes.ParseMessage("hermes/tts/say", nil); !errors.Is(err, hermes.ErrUnknownTopic) {
		t.Errorf("unknown topic err = %v, want ErrUnknownTopic", err)
	}
	if _, err := hermes.ParseMessage(hermes.TopicAsrStartListening, []byte(`{not json`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestAudioSummary_JSON(t *testing.T) {
	t.Parallel()
	b, err := hermes.Marshal(hermes.AudioSummary{DebiasedEnergy: 12, IsSpeech: true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m["debiasedEnergy"] != float64(12) || m["isSpeech"] != true {
		t.Errorf("unexpected payload %s", b)
	}
}

func TestTopics(t *testing.T) {
	t.Parallel()
	if got := hermes.AudioFrameTopic("default"); got != "hermes/audioServer/default/audioFrame" {
		t.Errorf("AudioFrameTopic = %q", got)
	}
	if got := hermes.AudioSummaryTopic("den"); got != "hermes/audioServer/den/audioSummary" {
		t.Errorf("AudioSummaryTopic = %q", got)
	}
}

func TestSiteFilter(t *testing.T) {
	t.Parallel()
	if !(hermes.SiteFilter(nil)).Accepts("anything") {
		t.Error("empty filter should accept every site")
	}
	f := hermes.SiteFilter{"default", "den"}
	if !f.Accepts("den") || f.Accepts("kitchen") {
		t.Error("filter did not match configured sites")
	}
}
