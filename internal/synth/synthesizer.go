// Package synth implements the per-session text-to-speech pipeline: engine
// invocation (with a deterministic tone fallback), real-time paced chunking,
// and barge-in handling at every chunk boundary.
package synth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/vocalink/internal/observe"
	"github.com/MrWong99/vocalink/internal/registry"
	"github.com/MrWong99/vocalink/pkg/audio"
	"github.com/MrWong99/vocalink/pkg/provider/tts"
)

// Reason is the terminal outcome of one synthesis request.
type Reason string

const (
	// ReasonCompleted: the full buffer was emitted.
	ReasonCompleted Reason = "completed"

	// ReasonCanceled: a barge-in cancel stopped the stream mid-flight.
	ReasonCanceled Reason = "canceled"

	// ReasonEmptyText: the request carried no text to synthesize.
	ReasonEmptyText Reason = "empty_text"
)

// Sink receives the output of one synthesis request in emission order. A
// Sink error aborts the stream; the synthesizer does not retry.
type Sink interface {
	// Chunk delivers one paced PCM16 chunk.
	Chunk(pcm []byte) error

	// Done terminates the request. Exactly one Done is delivered per
	// request unless the engine call itself failed.
	Done(reason Reason) error

	// Error reports an engine failure that abandoned the request.
	Error(msg string) error
}

// pausePollInterval is how often a paused stream re-checks the barge-in
// state. Polling keeps the implementation simple; interruption latency
// stays well within one chunk duration.
const pausePollInterval = 10 * time.Millisecond

// Synthesizer runs synthesis requests against an engine, pacing chunk
// delivery to real time. Safe for concurrent use across sessions; each
// request runs on its caller's goroutine.
type Synthesizer struct {
	engine  tts.Engine
	metrics *observe.Metrics

	// chunkLen is the nominal playback duration of one emitted chunk.
	chunkLen time.Duration

	// targetRate is the output sample rate when the session does not
	// request one.
	targetRate int
}

// Option customizes a Synthesizer.
type Option func(*Synthesizer)

// WithMetrics records synthesis metrics to m instead of the default instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Synthesizer) { s.metrics = m }
}

// WithChunkLen overrides the 80 ms default chunk duration.
func WithChunkLen(d time.Duration) Option {
	return func(s *Synthesizer) { s.chunkLen = d }
}

// WithTargetRate overrides the 24 kHz default output sample rate.
func WithTargetRate(rate int) Option {
	return func(s *Synthesizer) { s.targetRate = rate }
}

// New creates a Synthesizer backed by engine. A nil engine always uses the
// placeholder tone.
func New(engine tts.Engine, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		engine:     engine,
		chunkLen:   80 * time.Millisecond,
		targetRate: 24000,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Speak synthesizes text for sess and streams paced chunks into sink. The
// barge-in controller is consulted at every chunk boundary: pause holds the
// stream, cancel terminates it with ReasonCanceled and clears the one-shot
// flag. Returns the first sink or context error, nil on normal termination.
func (s *Synthesizer) Speak(ctx context.Context, sess *registry.Session, text string, sink Sink) error {
	if strings.TrimSpace(text) == "" {
		s.metrics.RecordSynthesis(ctx, string(ReasonEmptyText))
		return sink.Done(ReasonEmptyText)
	}

	pcm, rate, err := s.render(ctx, sess, text)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "tts", "tts")
		slog.Warn("synthesis failed, request abandoned", "session", sess.ID, "err", err)
		return sink.Error(err.Error())
	}

	chunkBytes := audio.BytesForDuration(s.chunkLen, rate)
	defer sess.SetSpeaking(false)

	for pos := 0; pos < len(pcm); {
		// Cancel wins over pause and drops the pending chunk entirely.
		if sess.Barge.ConsumeCancel() {
			s.metrics.RecordSynthesis(ctx, string(ReasonCanceled))
			return sink.Done(ReasonCanceled)
		}
		if sess.Barge.Paused() {
			sess.SetSpeaking(false)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pausePollInterval):
			}
			continue
		}

		end := pos + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		sess.SetSpeaking(true)
		if err := sink.Chunk(pcm[pos:end]); err != nil {
			return err
		}
		pos = end

		if pos < len(pcm) {
			// Pace delivery to real time so the receiving playback
			// buffer neither starves nor grows without bound.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.chunkLen):
			}
		}
	}

	s.metrics.RecordSynthesis(ctx, string(ReasonCompleted))
	return sink.Done(ReasonCompleted)
}

// render produces the complete PCM16 buffer for text at the session's
// target rate, falling back to the placeholder tone when no engine is
// configured.
func (s *Synthesizer) render(ctx context.Context, sess *registry.Session, text string) ([]byte, int, error) {
	voice, rate := sess.Voice()
	if rate == 0 {
		rate = s.targetRate
	}

	if s.engine == nil || !s.engine.Available() {
		// Deterministic placeholder proving the data path: a fixed
		// frequency tone whose duration tracks the text length.
		return audio.GenerateTone(audio.ToneDuration(text), rate), rate, nil
	}

	start := time.Now()
	pcm, nativeRate, err := s.engine.Synthesize(ctx, tts.Request{
		Text:       text,
		Voice:      voice,
		SampleRate: rate,
	})
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, 0, err
	}
	if nativeRate != rate {
		pcm = audio.ResampleMono16(pcm, nativeRate, rate)
	}
	return pcm, rate, nil
}
