package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables that override credentials from the YAML file.
const (
	EnvMQTTUsername = "HERMESMIC_MQTT_USERNAME"
	EnvMQTTPassword = "HERMESMIC_MQTT_PASSWORD"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg, os.Getenv)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides MQTT credentials with non-empty environment values.
// getenv is usually [os.Getenv].
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvMQTTUsername); v != "" {
		cfg.MQTT.Username = v
	}
	if v := getenv(EnvMQTTPassword); v != "" {
		cfg.MQTT.Password = v
	}
}

// ApplyDefaults fills zero values with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.MQTT.Host == "" {
		cfg.MQTT.Host = DefaultMQTTHost
	}
	if cfg.MQTT.Port == 0 {
		cfg.MQTT.Port = DefaultMQTTPort
	}

	m := &cfg.Microphone
	if m.SampleRate == 0 {
		m.SampleRate = DefaultSampleRate
	}
	if m.SampleWidth == 0 {
		m.SampleWidth = DefaultSampleWidth
	}
	if m.Channels == 0 {
		m.Channels = DefaultChannels
	}
	if m.ChunkSize == 0 {
		m.ChunkSize = DefaultChunkSize
	}
	if m.QueueSize == 0 {
		m.QueueSize = DefaultQueueSize
	}

	if cfg.UDP.Host == "" {
		cfg.UDP.Host = DefaultUDPHost
	}

	if cfg.Summary.VAD == "" {
		cfg.Summary.VAD = DefaultVAD
	}
	if cfg.Summary.SkipFrames == 0 {
		cfg.Summary.SkipFrames = DefaultSkipFrames
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// MQTT
	if cfg.MQTT.Host == "" {
		errs = append(errs, errors.New("mqtt.host is required"))
	}
	if cfg.MQTT.Port < 1 || cfg.MQTT.Port > 65535 {
		errs = append(errs, fmt.Errorf("mqtt.port %d is out of range [1, 65535]", cfg.MQTT.Port))
	}
	if cfg.MQTT.Password != "" && cfg.MQTT.Username == "" {
		slog.Warn("mqtt.password is set without mqtt.username; the password will be ignored")
	}

	// Microphone
	m := cfg.Microphone
	if len(m.RecordCommand) == 0 || m.RecordCommand[0] == "" {
		errs = append(errs, errors.New("microphone.record_command is required"))
	}
	if m.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("microphone.sample_rate %d must be positive", m.SampleRate))
	}
	if m.SampleWidth < 1 || m.SampleWidth > 4 {
		errs = append(errs, fmt.Errorf("microphone.sample_width %d is out of range [1, 4]", m.SampleWidth))
	}
	if m.Channels < 1 || m.Channels > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("microphone.channels %d is out of range [1, %d]", m.Channels, math.MaxUint16))
	}
	if fb := m.SampleWidth * m.Channels; fb > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("microphone sample frame of %d bytes exceeds the WAV block align limit", fb))
	}
	if m.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("microphone.chunk_size %d must be positive", m.ChunkSize))
	} else if fb := m.SampleWidth * m.Channels; fb > 0 && m.ChunkSize%fb != 0 {
		errs = append(errs, fmt.Errorf("microphone.chunk_size %d is not a multiple of the %d-byte sample frame", m.ChunkSize, fb))
	}
	if m.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("microphone.queue_size %d must be positive", m.QueueSize))
	}
	if len(m.TestCommand) > 0 && len(m.ListCommand) == 0 {
		slog.Warn("microphone.test_command is set without microphone.list_command; devices cannot be tested")
	}

	// UDP
	if cfg.UDP.Port < 0 || cfg.UDP.Port > 65535 {
		errs = append(errs, fmt.Errorf("udp.port %d is out of range [0, 65535]", cfg.UDP.Port))
	}
	if cfg.UDP.Enabled() && m.ChunkSize+44 > maxDatagram {
		errs = append(errs, fmt.Errorf("microphone.chunk_size %d does not fit one UDP datagram (max %d payload bytes)", m.ChunkSize, maxDatagram-44))
	}

	// Summary
	if mode := cfg.Summary.Mode(); mode < 0 || mode > 3 {
		errs = append(errs, fmt.Errorf("summary.vad_mode %d is out of range [0, 3]", mode))
	}
	if cfg.Summary.SkipFrames < 1 {
		errs = append(errs, fmt.Errorf("summary.skip_frames %d must be at least 1", cfg.Summary.SkipFrames))
	}
	if cfg.Summary.VAD != "" && !isKnownVAD(cfg.Summary.VAD) {
		slog.Warn("unknown summary.vad name; it must be registered before startup",
			"name", cfg.Summary.VAD,
			"known", KnownVADNames,
		)
	}

	return errors.Join(errs...)
}

// maxDatagram is the largest IPv4 UDP payload.
const maxDatagram = 65507
