// Package server assembles the Vocalink HTTP surface: the control channel,
// the per-session ingest and synthesis websocket endpoints, health probes,
// and the Prometheus metrics scrape endpoint. It owns the listener lifecycle
// and the background session sweeper.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vocalink/internal/config"
	"github.com/MrWong99/vocalink/internal/control"
	"github.com/MrWong99/vocalink/internal/health"
	"github.com/MrWong99/vocalink/internal/ingest"
	"github.com/MrWong99/vocalink/internal/observe"
	"github.com/MrWong99/vocalink/internal/registry"
	"github.com/MrWong99/vocalink/internal/synth"
	"github.com/MrWong99/vocalink/internal/transcript"
	"github.com/MrWong99/vocalink/internal/transcript/postgres"
	"github.com/MrWong99/vocalink/pkg/provider/stt"
	"github.com/MrWong99/vocalink/pkg/provider/tts"
	"github.com/MrWong99/vocalink/pkg/provider/vad"
)

// shutdownTimeout bounds how long Run waits for in-flight HTTP requests
// after the context is cancelled. Hijacked websocket connections are not
// waited on; their read loops exit when the client side drops.
const shutdownTimeout = 15 * time.Second

// Dependencies carries the engines and optional collaborators the server
// routes traffic through. Registry is required; every other field may be nil,
// in which case the corresponding stage runs degraded (buffering-only
// ingest, placeholder-tone synthesis, no persistence).
type Dependencies struct {
	Registry *registry.Registry

	STT stt.Engine
	TTS tts.Engine
	VAD vad.Detector

	// Sink receives final transcripts when set. A Sink that also implements
	// [TranscriptStore] additionally serves the per-session transcript
	// read-back route.
	Sink ingest.FinalSink

	// Metrics defaults to observe.DefaultMetrics when nil.
	Metrics *observe.Metrics
}

// TranscriptStore is a transcript sink that can also read persisted
// utterances back, newest first. [postgres.Sink] satisfies it.
type TranscriptStore interface {
	ingest.FinalSink
	Recent(ctx context.Context, sessionID string, limit int) ([]postgres.Utterance, error)
}

// Server is the assembled Vocalink HTTP server.
type Server struct {
	cfg     *config.Config
	deps    Dependencies
	handler http.Handler
}

// New wires the routing table from cfg and deps. It does not open the
// listener; call [Server.Run] for that.
func New(cfg *config.Config, deps Dependencies) *Server {
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}

	s := &Server{cfg: cfg, deps: deps}
	if _, err := deps.Metrics.RegisterActiveSessions(func() int64 {
		return int64(deps.Registry.Count())
	}); err != nil {
		slog.Warn("registering active sessions gauge", "err", err)
	}
	s.handler = observe.Middleware(deps.Metrics)(s.buildMux())
	return s
}

// Handler returns the fully wired routing table, useful for serving through
// httptest in integration tests.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) buildMux() *http.ServeMux {
	audio := s.cfg.Audio

	controlHandler := &control.Handler{
		Registry: s.deps.Registry,
		ChunkMs:  audio.ChunkMs,
		Metrics:  s.deps.Metrics,
	}

	ingestChannel := &ingest.Channel{
		Registry: s.deps.Registry,
		Engine:   s.deps.STT,
		Detector: s.deps.VAD,
		Config: ingest.Config{
			Window:     time.Duration(audio.WindowMs) * time.Millisecond,
			Overlap:    time.Duration(audio.WindowOverlapMs) * time.Millisecond,
			MinSilence: time.Duration(audio.MinSilenceMs) * time.Millisecond,
			MaxBuffer:  time.Duration(audio.MaxBufferSeconds) * time.Second,
		},
		NewCorrector: newCorrector,
		Sink:         s.deps.Sink,
		Metrics:      s.deps.Metrics,
	}

	synthesizer := synth.New(s.deps.TTS,
		synth.WithMetrics(s.deps.Metrics),
		synth.WithChunkLen(time.Duration(audio.ChunkMs)*time.Millisecond),
		synth.WithTargetRate(audio.SynthesisSampleRate),
	)
	synthesisChannel := &synth.Channel{
		Registry:    s.deps.Registry,
		Synthesizer: synthesizer,
		Metrics:     s.deps.Metrics,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /v1/control", controlHandler)
	mux.Handle("GET /v1/sessions/{id}/ingest", ingestChannel)
	mux.Handle("GET /v1/sessions/{id}/synthesis", synthesisChannel)
	mux.Handle("GET /metrics", promhttp.Handler())
	if store, ok := s.deps.Sink.(TranscriptStore); ok {
		mux.HandleFunc("GET /v1/sessions/{id}/transcripts", s.handleTranscripts(store))
	}
	s.buildHealth().Register(mux)
	return mux
}

// handleTranscripts serves the persisted finals of one session, newest
// first. The route only exists when the configured sink can read back.
func (s *Server) handleTranscripts(store TranscriptStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := s.deps.Registry.Get(id); err != nil {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
				return
			}
			limit = n
		}

		utterances, err := store.Recent(r.Context(), id, limit)
		if err != nil {
			slog.Error("transcript read-back failed", "session", id, "err", err)
			http.Error(w, "transcript store unavailable", http.StatusInternalServerError)
			return
		}
		if utterances == nil {
			utterances = []postgres.Utterance{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"utterances": utterances}); err != nil {
			slog.Warn("encoding transcript response", "session", id, "err", err)
		}
	}
}

// buildHealth assembles the probe handler. Readiness checks only engines
// that are actually configured: an unconfigured stage is a deliberate
// degraded mode, not a failure.
func (s *Server) buildHealth() *health.Handler {
	var checkers []health.Checker
	if e := s.deps.STT; e != nil {
		checkers = append(checkers, health.Checker{Name: "stt", Check: engineCheck("stt", e.Available)})
	}
	if e := s.deps.TTS; e != nil {
		checkers = append(checkers, health.Checker{Name: "tts", Check: engineCheck("tts", e.Available)})
	}

	h := health.New(checkers...)
	h.Status = func() health.Status {
		return health.Status{
			STTAvailable:      s.deps.STT != nil && s.deps.STT.Available(),
			TTSAvailable:      s.deps.TTS != nil && s.deps.TTS.Available(),
			VADAvailable:      s.deps.VAD != nil && s.deps.VAD.Available(),
			ActiveSessions:    s.deps.Registry.Count(),
			SessionTTLSeconds: s.cfg.Session.TTLSeconds,
		}
	}
	return h
}

func engineCheck(name string, available func() bool) func(context.Context) error {
	return func(context.Context) error {
		if !available() {
			return fmt.Errorf("%s engine unavailable", name)
		}
		return nil
	}
}

// newCorrector builds a keyword corrector for one ingest pipeline.
func newCorrector(keywords []string) ingest.Corrector {
	if len(keywords) == 0 {
		return nil
	}
	return transcript.New(keywords)
}

// Run opens the listener and blocks until ctx is cancelled or the server
// fails. The session sweeper runs alongside the listener and stops with it.
// On cancellation the HTTP server drains in-flight requests for up to
// shutdownTimeout before Run returns.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.deps.Registry.RunSweeper(gctx, s.cfg.Session.TTL(), s.cfg.Session.SweepInterval())
		return nil
	})

	g.Go(func() error {
		slog.Info("http server listening", "addr", s.cfg.Server.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen on %s: %w", s.cfg.Server.ListenAddr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(drainCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
