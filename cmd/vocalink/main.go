// Command vocalink is the main entry point for the Vocalink duplex audio
// streaming server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrWong99/vocalink/internal/config"
	"github.com/MrWong99/vocalink/internal/observe"
	"github.com/MrWong99/vocalink/internal/registry"
	"github.com/MrWong99/vocalink/internal/resilience"
	"github.com/MrWong99/vocalink/internal/server"
	"github.com/MrWong99/vocalink/internal/transcript/postgres"
	"github.com/MrWong99/vocalink/pkg/provider/stt"
	sttopenai "github.com/MrWong99/vocalink/pkg/provider/stt/openai"
	"github.com/MrWong99/vocalink/pkg/provider/stt/whisper"
	"github.com/MrWong99/vocalink/pkg/provider/tts"
	"github.com/MrWong99/vocalink/pkg/provider/tts/elevenlabs"
	ttsopenai "github.com/MrWong99/vocalink/pkg/provider/tts/openai"
	"github.com/MrWong99/vocalink/pkg/provider/tts/tone"
	"github.com/MrWong99/vocalink/pkg/provider/vad"
	"github.com/MrWong99/vocalink/pkg/provider/vad/energy"
)

// version is stamped by the release build; "dev" otherwise.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// API keys may come from a local .env file during development.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocalink: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocalink: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("vocalink starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	metricsShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsShutdown(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Engines ───────────────────────────────────────────────────────────────
	deps := server.Dependencies{
		Registry: registry.New(),
		Metrics:  observe.DefaultMetrics(),
	}

	if deps.STT, err = buildSTT(cfg.Providers.STT); err != nil {
		slog.Error("failed to build stt engine", "err", err)
		return 1
	}
	if deps.TTS, err = buildTTS(cfg.Providers.TTS); err != nil {
		slog.Error("failed to build tts engine", "err", err)
		return 1
	}
	if deps.VAD, err = buildVAD(cfg.Providers.VAD); err != nil {
		slog.Error("failed to build vad detector", "err", err)
		return 1
	}

	// ── Transcript sink (optional) ────────────────────────────────────────────
	if dsn := cfg.Transcript.PostgresDSN; dsn != "" {
		sink, err := postgres.NewSink(ctx, dsn)
		if err != nil {
			slog.Error("failed to open transcript sink", "err", err)
			return 1
		}
		defer sink.Close()
		deps.Sink = sink
		slog.Info("transcript sink connected")
	}

	printStartupSummary(cfg)

	// ── Serve ─────────────────────────────────────────────────────────────────
	srv := server.New(cfg, deps)

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Engine wiring ─────────────────────────────────────────────────────────────

// buildSTT constructs the configured transcription engine wrapped in a
// circuit breaker. An empty name leaves transcription unconfigured.
func buildSTT(cfg config.STTConfig) (stt.Engine, error) {
	var (
		engine stt.Engine
		err    error
	)
	switch cfg.Name {
	case "":
		return nil, nil
	case "whisper":
		var opts []whisper.Option
		if cfg.Model != "" {
			opts = append(opts, whisper.WithModel(cfg.Model))
		}
		if cfg.Language != "" {
			opts = append(opts, whisper.WithLanguage(cfg.Language))
		}
		engine, err = whisper.New(cfg.ServerURL, opts...)
	case "whisper-native":
		var opts []whisper.NativeOption
		if cfg.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(cfg.Language))
		}
		engine, err = whisper.NewNative(cfg.ModelPath, opts...)
	case "openai":
		engine, err = sttopenai.New(apiKey(cfg.APIKey, "OPENAI_API_KEY"), cfg.Model)
	default:
		return nil, fmt.Errorf("unknown stt engine %q", cfg.Name)
	}
	if err != nil {
		return nil, err
	}
	return resilience.NewSTTEngine(engine, resilience.BreakerConfig{Name: "stt-" + cfg.Name}), nil
}

// buildTTS constructs the configured synthesis engine. Hosted engines are
// wrapped in a fallback chain ending in the placeholder tone generator so a
// provider outage degrades output instead of silencing it.
func buildTTS(cfg config.TTSConfig) (tts.Engine, error) {
	var (
		engine tts.Engine
		err    error
	)
	switch cfg.Name {
	case "", "tone":
		return tone.New(), nil
	case "elevenlabs":
		var opts []elevenlabs.Option
		if cfg.Model != "" {
			opts = append(opts, elevenlabs.WithModel(cfg.Model))
		}
		if cfg.Voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(cfg.Voice))
		}
		engine, err = elevenlabs.New(apiKey(cfg.APIKey, "ELEVENLABS_API_KEY"), opts...)
	case "openai":
		engine, err = ttsopenai.New(apiKey(cfg.APIKey, "OPENAI_API_KEY"), cfg.Model)
	default:
		return nil, fmt.Errorf("unknown tts engine %q", cfg.Name)
	}
	if err != nil {
		return nil, err
	}

	chain := resilience.NewTTSChain(engine, cfg.Name, resilience.BreakerConfig{Name: "tts-" + cfg.Name})
	chain.AddFallback("tone", tone.New())
	return chain, nil
}

// buildVAD constructs the configured voice activity detector. An empty name
// disables gating; every frame is treated as speech.
func buildVAD(cfg config.VADConfig) (vad.Detector, error) {
	switch cfg.Name {
	case "":
		return nil, nil
	case "energy":
		var opts []energy.Option
		if cfg.EnergyThreshold > 0 {
			opts = append(opts, energy.WithThreshold(cfg.EnergyThreshold))
		}
		return energy.New(opts...)
	default:
		return nil, fmt.Errorf("unknown vad detector %q", cfg.Name)
	}
}

// apiKey returns the configured key, falling back to the named environment
// variable.
func apiKey(configured, envVar string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv(envVar)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// printStartupSummary logs which pipeline stages are configured so a glance
// at the first lines of output shows the server's degraded modes.
func printStartupSummary(cfg *config.Config) {
	orDisabled := func(name string) string {
		if name == "" {
			return "disabled"
		}
		return name
	}
	slog.Info("pipeline configuration",
		"stt", orDisabled(cfg.Providers.STT.Name),
		"tts", orDisabled(cfg.Providers.TTS.Name),
		"vad", orDisabled(cfg.Providers.VAD.Name),
		"transcript_sink", cfg.Transcript.PostgresDSN != "",
	)
}
