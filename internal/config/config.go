// Package config provides the configuration schema, loader, and defaults for
// the Vocalink duplex audio streaming server.
package config

import "time"

// LogLevel controls log verbosity for the Vocalink server.
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

// Config is the root configuration structure for Vocalink.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	Session    SessionConfig    `yaml:"session"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Transcript TranscriptConfig `yaml:"transcript"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds the streaming-core timing and rate parameters. Zero
// values are replaced by the documented defaults in [ApplyDefaults].
type AudioConfig struct {
	// IngestSampleRate is the default capture rate in Hz. Default: 16000.
	IngestSampleRate int `yaml:"ingest_sample_rate"`

	// SynthesisSampleRate is the default playback rate in Hz. Default: 24000.
	SynthesisSampleRate int `yaml:"synthesis_sample_rate"`

	// WindowMs is the transcription analysis window length. Default: 400.
	WindowMs int `yaml:"window_ms"`

	// WindowOverlapMs is the tail retained between consecutive windows so
	// words are not cut at boundaries. Default: 120 (30% of the window).
	WindowOverlapMs int `yaml:"window_overlap_ms"`

	// MinSilenceMs is the silence duration treated as an utterance gap.
	// Default: 500.
	MinSilenceMs int `yaml:"min_silence_ms"`

	// ChunkMs is the synthesis playback chunk duration. Default: 80.
	ChunkMs int `yaml:"chunk_ms"`

	// MaxBufferSeconds caps the per-session ingest buffer; older audio is
	// trimmed FIFO beyond this. Default: 10.
	MaxBufferSeconds int `yaml:"max_buffer_seconds"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	// TTLSeconds is how long a session may stay idle before the sweep
	// destroys it. Default: 300.
	TTLSeconds int `yaml:"ttl_seconds"`

	// SweepSeconds is how often the background sweep runs. Default: 60.
	SweepSeconds int `yaml:"sweep_seconds"`
}

// TTL returns the idle timeout as a duration.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// SweepInterval returns the sweep period as a duration.
func (s SessionConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepSeconds) * time.Second
}

// ProvidersConfig declares which engine implementation to use for each
// pipeline stage. An empty name leaves that stage unconfigured; the core
// runs degraded (buffering-only ingest, placeholder-tone synthesis).
type ProvidersConfig struct {
	STT STTConfig `yaml:"stt"`
	TTS TTSConfig `yaml:"tts"`
	VAD VADConfig `yaml:"vad"`
}

// STTConfig selects and configures the transcription engine.
type STTConfig struct {
	// Name is one of "whisper", "whisper-native", "openai", or empty.
	Name string `yaml:"name"`

	// ServerURL is the whisper.cpp server address (name: whisper).
	ServerURL string `yaml:"server_url"`

	// ModelPath is the GGML model file (name: whisper-native).
	ModelPath string `yaml:"model_path"`

	// APIKey authenticates hosted engines. Falls back to OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`

	// Model is the engine-specific model identifier.
	Model string `yaml:"model"`

	// Language is the default BCP-47 recognition hint.
	Language string `yaml:"language"`
}

// TTSConfig selects and configures the synthesis engine.
type TTSConfig struct {
	// Name is one of "elevenlabs", "openai", "tone", or empty (same as
	// "tone": the placeholder generator).
	Name string `yaml:"name"`

	// APIKey authenticates hosted engines. Falls back to
	// ELEVENLABS_API_KEY / OPENAI_API_KEY per engine.
	APIKey string `yaml:"api_key"`

	// Model is the engine-specific model identifier.
	Model string `yaml:"model"`

	// Voice is the default voice identifier.
	Voice string `yaml:"voice"`
}

// VADConfig selects and configures the voice activity detector.
type VADConfig struct {
	// Name is "energy" or empty (VAD disabled: every frame is analysed).
	Name string `yaml:"name"`

	// EnergyThreshold is the RMS speech threshold for the energy detector.
	// Zero uses the detector default.
	EnergyThreshold float64 `yaml:"energy_threshold"`
}

// TranscriptConfig configures optional final-transcript persistence.
type TranscriptConfig struct {
	// PostgresDSN enables the Postgres transcript sink when non-empty.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Defaults as documented in the external interface contract.
const (
	DefaultListenAddr          = ":8080"
	DefaultIngestSampleRate    = 16000
	DefaultSynthesisSampleRate = 24000
	DefaultWindowMs            = 400
	DefaultWindowOverlapMs     = 120
	DefaultMinSilenceMs        = 500
	DefaultChunkMs             = 80
	DefaultMaxBufferSeconds    = 10
	DefaultTTLSeconds          = 300
	DefaultSweepSeconds        = 60
)

// ApplyDefaults fills every zero-valued knob with its documented default.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Audio.IngestSampleRate == 0 {
		c.Audio.IngestSampleRate = DefaultIngestSampleRate
	}
	if c.Audio.SynthesisSampleRate == 0 {
		c.Audio.SynthesisSampleRate = DefaultSynthesisSampleRate
	}
	if c.Audio.WindowMs == 0 {
		c.Audio.WindowMs = DefaultWindowMs
	}
	if c.Audio.WindowOverlapMs == 0 {
		c.Audio.WindowOverlapMs = DefaultWindowOverlapMs
	}
	if c.Audio.MinSilenceMs == 0 {
		c.Audio.MinSilenceMs = DefaultMinSilenceMs
	}
	if c.Audio.ChunkMs == 0 {
		c.Audio.ChunkMs = DefaultChunkMs
	}
	if c.Audio.MaxBufferSeconds == 0 {
		c.Audio.MaxBufferSeconds = DefaultMaxBufferSeconds
	}
	if c.Session.TTLSeconds == 0 {
		c.Session.TTLSeconds = DefaultTTLSeconds
	}
	if c.Session.SweepSeconds == 0 {
		c.Session.SweepSeconds = DefaultSweepSeconds
	}
}
