// Package config provides the configuration schema, loader, and VAD engine
// registry for the hermesmic microphone service.
//
// All values are read once at startup and are immutable for the lifetime of
// the process.
package config

import (
	"net"
	"strconv"

	"github.com/MrWong99/hermesmic/pkg/audio"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default values applied by [ApplyDefaults].
const (
	DefaultMQTTHost    = "localhost"
	DefaultMQTTPort    = 1883
	DefaultSiteID      = "default"
	DefaultSampleRate  = 16000
	DefaultSampleWidth = 2
	DefaultChannels    = 1
	DefaultChunkSize   = 2048
	DefaultQueueSize   = 256
	DefaultUDPHost     = "127.0.0.1"
	DefaultVAD         = "webrtc"
	DefaultVADMode     = 3
	DefaultSkipFrames  = 5
)

// Config is the root configuration structure for hermesmic.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Microphone MicrophoneConfig `yaml:"microphone"`
	UDP        UDPConfig        `yaml:"udp"`
	Summary    SummaryConfig    `yaml:"summary"`
}

// ServerConfig holds the operator HTTP surface and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz, /metrics and
	// /debug/record. Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// MQTTConfig describes the Hermes broker connection.
type MQTTConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Username and Password may also come from HERMESMIC_MQTT_USERNAME and
	// HERMESMIC_MQTT_PASSWORD.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ClientID defaults to "hermesmic-<uuid>".
	ClientID string `yaml:"client_id"`

	TLS bool `yaml:"tls"`

	// SiteIDs filters incoming messages. Empty accepts every site.
	SiteIDs []string `yaml:"site_ids"`
}

// MicrophoneConfig describes the external recorder and the raw stream it
// produces.
type MicrophoneConfig struct {
	// RecordCommand is the argv of the recorder. It must write headerless
	// PCM in the configured format to stdout.
	RecordCommand []string `yaml:"record_command"`

	// ListCommand is the argv of a device lister with arecord -L style
	// output. Optional.
	ListCommand []string `yaml:"list_command"`

	// TestCommand records from one device; "{}" in any argument is replaced
	// by the device name. Optional.
	TestCommand []string `yaml:"test_command"`

	SampleRate  int `yaml:"sample_rate"`
	SampleWidth int `yaml:"sample_width"`
	Channels    int `yaml:"channels"`

	// ChunkSize is the number of bytes per read and per framed chunk.
	ChunkSize int `yaml:"chunk_size"`

	// QueueSize is the capacity of the hand-off between reader and
	// dispatcher, in chunks.
	QueueSize int `yaml:"queue_size"`

	// OutputSiteID is the site audio is published for. Defaults to the first
	// entry of mqtt.site_ids, or "default".
	OutputSiteID string `yaml:"output_site_id"`
}

// Format returns the PCM layout of the recorder output.
func (m MicrophoneConfig) Format() audio.Format {
	return audio.Format{SampleRate: m.SampleRate, SampleWidth: m.SampleWidth, Channels: m.Channels}
}

// UDPConfig is the optional UDP sink. Port 0 disables it.
type UDPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Enabled reports whether a UDP destination is configured.
func (u UDPConfig) Enabled() bool { return u.Port > 0 }

// Addr returns host:port, bracketing IPv6 literals.
func (u UDPConfig) Addr() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

// SummaryConfig configures voice activity summaries.
type SummaryConfig struct {
	// VAD selects the classifier registered in the [Registry]
	// ("webrtc" or "energy").
	VAD string `yaml:"vad"`

	// VADMode is the aggressiveness in [0, 3].
	VADMode *int `yaml:"vad_mode"`

	// SkipFrames is the number of chunks per summary.
	SkipFrames int `yaml:"skip_frames"`
}

// Mode returns the configured aggressiveness or [DefaultVADMode].
func (s SummaryConfig) Mode() int {
	if s.VADMode == nil {
		return DefaultVADMode
	}
	return *s.VADMode
}

// OutputSiteID resolves the site audio frames and summaries are published for.
func (c *Config) OutputSiteID() string {
	if c.Microphone.OutputSiteID != "" {
		return c.Microphone.OutputSiteID
	}
	if len(c.MQTT.SiteIDs) > 0 {
		return c.MQTT.SiteIDs[0]
	}
	return DefaultSiteID
}
