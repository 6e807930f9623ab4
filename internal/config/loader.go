package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known engine names per pipeline stage.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "whisper-native", "openai"},
	"tts": {"elevenlabs", "openai", "tone"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if r := cfg.Audio.IngestSampleRate; r != 16000 && r != 24000 {
		errs = append(errs, fmt.Errorf("audio.ingest_sample_rate %d is unsupported; valid values: 16000, 24000", r))
	}
	if r := cfg.Audio.SynthesisSampleRate; r != 16000 && r != 24000 {
		errs = append(errs, fmt.Errorf("audio.synthesis_sample_rate %d is unsupported; valid values: 16000, 24000", r))
	}
	if cfg.Audio.WindowMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.window_ms %d must be positive", cfg.Audio.WindowMs))
	}
	if cfg.Audio.WindowOverlapMs < 0 || cfg.Audio.WindowOverlapMs >= cfg.Audio.WindowMs {
		errs = append(errs, fmt.Errorf("audio.window_overlap_ms %d must be in [0, window_ms)", cfg.Audio.WindowOverlapMs))
	}
	if cfg.Audio.ChunkMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_ms %d must be positive", cfg.Audio.ChunkMs))
	}
	if cfg.Audio.MaxBufferSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.max_buffer_seconds %d must be positive", cfg.Audio.MaxBufferSeconds))
	}
	if cfg.Session.TTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("session.ttl_seconds %d must be positive", cfg.Session.TTLSeconds))
	}
	if cfg.Session.SweepSeconds <= 0 {
		errs = append(errs, fmt.Errorf("session.sweep_seconds %d must be positive", cfg.Session.SweepSeconds))
	}

	if err := validateProviderName("stt", cfg.Providers.STT.Name); err != nil {
		errs = append(errs, err)
	}
	if err := validateProviderName("tts", cfg.Providers.TTS.Name); err != nil {
		errs = append(errs, err)
	}
	if err := validateProviderName("vad", cfg.Providers.VAD.Name); err != nil {
		errs = append(errs, err)
	}

	if cfg.Providers.STT.Name == "whisper" && cfg.Providers.STT.ServerURL == "" {
		errs = append(errs, errors.New("providers.stt.server_url is required for the whisper engine"))
	}
	if cfg.Providers.STT.Name == "whisper-native" && cfg.Providers.STT.ModelPath == "" {
		errs = append(errs, errors.New("providers.stt.model_path is required for the whisper-native engine"))
	}

	return errors.Join(errs...)
}

// validateProviderName checks name against the known set for kind. An empty
// name is always valid (the stage runs unconfigured).
func validateProviderName(kind, name string) error {
	if name == "" {
		return nil
	}
	if !slices.Contains(ValidProviderNames[kind], name) {
		return fmt.Errorf("providers.%s.name %q is unknown; valid values: %v", kind, name, ValidProviderNames[kind])
	}
	return nil
}
