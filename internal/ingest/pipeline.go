package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/vocalink/internal/observe"
	"github.com/MrWong99/vocalink/pkg/audio"
	"github.com/MrWong99/vocalink/pkg/provider/stt"
	"github.com/MrWong99/vocalink/pkg/provider/vad"
)

// EventType classifies pipeline output events.
type EventType string

const (
	// EventPartial is an intermediate transcript; more context may follow.
	EventPartial EventType = "partial"

	// EventFinal is a terminal transcript for one utterance; the analysis
	// buffer has been reset.
	EventFinal EventType = "final"

	// EventNotice is a non-fatal diagnostic, identified by Event.Notice.
	EventNotice EventType = "notice"
)

// Notice identifiers carried by EventNotice events.
const (
	NoticeSTTNotConfigured = "stt_not_configured"
	NoticeBufferTrimmed    = "buffer_trimmed"
)

// Event is one output of the pipeline: a transcript or a diagnostic.
type Event struct {
	Type       EventType
	Text       string
	Confidence float64
	Notice     string
}

// Corrector post-processes final transcripts, e.g. phonetic keyword
// correction. Implementations must be safe for concurrent use.
type Corrector interface {
	Correct(text string) string
}

// FinalSink persists final transcripts. Implementations must be safe for
// concurrent use.
type FinalSink interface {
	Write(ctx context.Context, sessionID, text string, confidence float64) error
}

// Config holds the analysis parameters of one pipeline.
type Config struct {
	// SampleRate is the session's capture rate in Hz.
	SampleRate int

	// Window is the analysis window length. Default 400 ms.
	Window time.Duration

	// Overlap is the tail retained between consecutive windows so words
	// are not cut at boundaries. Must be shorter than Window.
	Overlap time.Duration

	// MinSilence is the silence duration after which a pending utterance
	// is flushed as final. Default 500 ms.
	MinSilence time.Duration

	// MaxBuffer is the FIFO cap. Default 10 s of audio.
	MaxBuffer time.Duration

	// Language is an optional recognition hint passed to the engine.
	Language string
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Window == 0 {
		c.Window = 400 * time.Millisecond
	}
	if c.Overlap == 0 {
		c.Overlap = 120 * time.Millisecond
	}
	if c.MinSilence == 0 {
		c.MinSilence = 500 * time.Millisecond
	}
	if c.MaxBuffer == 0 {
		c.MaxBuffer = 10 * time.Second
	}
}

// Pipeline drives windowed transcription for one session's ingest stream.
// It is owned by a single goroutine (the channel reader); none of its
// methods are safe for concurrent use.
type Pipeline struct {
	engine    stt.Engine
	detector  vad.Detector
	corrector Corrector
	metrics   *observe.Metrics

	cfg          Config
	buf          *Buffer
	windowBytes  int
	overlapBytes int

	// silence accumulates consecutive VAD-classified silence; reset on
	// speech. pending marks that at least one window was submitted since
	// the last final, so a silence flush has something to finalize.
	silence time.Duration
	pending bool
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithDetector gates analysis behind the given voice-activity detector.
func WithDetector(d vad.Detector) Option {
	return func(p *Pipeline) { p.detector = d }
}

// WithCorrector post-processes final transcripts before they are emitted.
func WithCorrector(c Corrector) Option {
	return func(p *Pipeline) { p.corrector = c }
}

// WithMetrics records pipeline metrics to m instead of the default instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline transcribing through engine with the given config.
func New(engine stt.Engine, cfg Config, opts ...Option) *Pipeline {
	cfg.applyDefaults()
	p := &Pipeline{
		engine:       engine,
		cfg:          cfg,
		windowBytes:  audio.BytesForDuration(cfg.Window, cfg.SampleRate),
		overlapBytes: audio.BytesForDuration(cfg.Overlap, cfg.SampleRate),
	}
	p.buf = NewBuffer(audio.BytesForDuration(cfg.MaxBuffer, cfg.SampleRate))
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// SetHints replaces the session-derived recognition inputs in place,
// leaving buffered audio intact. enable-stt may arrive while frames are
// already streaming, so the channel re-applies hints rather than fixing
// them at construction.
func (p *Pipeline) SetHints(language string, d vad.Detector, c Corrector) {
	p.cfg.Language = language
	p.detector = d
	p.corrector = c
}

// BufferedBytes returns the current analysis-buffer length.
func (p *Pipeline) BufferedBytes() int {
	return p.buf.Len()
}

// BufferFrame appends one frame without any analysis. Used while the
// session has transcription disabled: it consumes no processing beyond
// buffering, but the FIFO cap still holds.
func (p *Pipeline) BufferFrame(ctx context.Context, frame []byte) []Event {
	if len(frame) == 0 {
		return nil
	}
	p.metrics.FramesIngested.Add(ctx, 1)
	if trimmed := p.buf.Append(frame); trimmed > 0 {
		p.metrics.BufferTrims.Add(ctx, 1)
		return []Event{{Type: EventNotice, Notice: NoticeBufferTrimmed}}
	}
	return nil
}

// ProcessFrame ingests one raw PCM16 frame and returns the events it
// produced, possibly none. Frames are processed strictly in call order.
// Zero-length frames and frames too short for VAD classification are
// buffered without being separately classified.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame []byte) []Event {
	var events []Event

	if len(frame) > 0 {
		p.metrics.FramesIngested.Add(ctx, 1)
		if trimmed := p.buf.Append(frame); trimmed > 0 {
			p.metrics.BufferTrims.Add(ctx, 1)
			slog.Debug("ingest buffer over capacity, trimmed oldest bytes",
				"trimmed", trimmed, "retained", p.buf.Len())
			events = append(events, Event{Type: EventNotice, Notice: NoticeBufferTrimmed})
		}
	}

	speech, classified := p.classify(frame)
	switch {
	case !classified:
		// Pass-through frames count as neither speech nor silence; in
		// particular they must not reset the silence accumulator, or
		// keepalive frames interleaved with a silence gap would starve a
		// pending utterance of its final flush.
		if !p.pending {
			return events
		}
	case speech:
		p.silence = 0
		p.pending = true
	default:
		p.silence += audio.Duration(len(frame), p.cfg.SampleRate)
		if !p.pending {
			// Pure silence with no utterance in progress: keep buffering
			// but skip analysis, transcribing silence wastes engine calls.
			return events
		}
	}

	// Extract full windows in order, retaining the overlap so words are
	// not cut at boundaries. Mid-utterance windows are partial.
	for p.buf.Len() >= p.windowBytes {
		p.pending = true
		events = append(events, p.transcribe(ctx, p.buf.Peek(p.windowBytes), false)...)
		p.buf.Advance(p.windowBytes - p.overlapBytes)
	}

	// Sustained silence completes the utterance: transcribe whatever tail
	// remains as the terminal window, then start fresh. When the tail is
	// shorter than the overlap it holds no context beyond what the last
	// partial already saw, but it is still the utterance's closing audio.
	if p.pending && p.silence >= p.cfg.MinSilence && p.buf.Len() > 0 {
		events = append(events, p.transcribe(ctx, p.buf.Peek(p.buf.Len()), true)...)
		p.buf.Reset()
		p.pending = false
		p.silence = 0
	}
	return events
}

// classify runs the detector on frame. Zero-length frames and frames the
// detector rejects (too short, malformed) come back unclassified: they are
// buffered upstream but counted as neither speech nor silence. Without a
// usable detector every nonempty frame counts as speech.
func (p *Pipeline) classify(frame []byte) (speech, classified bool) {
	if len(frame) == 0 {
		return false, false
	}
	if p.detector == nil || !p.detector.Available() {
		return true, true
	}
	d, err := p.detector.Classify(frame)
	if err != nil {
		return false, false
	}
	return d.Speech, true
}

// transcribe submits one window to the engine and converts the result into
// events. Engine failures are transient and local: the window is abandoned
// and processing resumes on the next one.
func (p *Pipeline) transcribe(ctx context.Context, window []byte, final bool) []Event {
	if !p.engine.Available() {
		return []Event{{Type: EventNotice, Notice: NoticeSTTNotConfigured}}
	}

	start := time.Now()
	res, err := p.engine.Transcribe(ctx, stt.Window{
		PCM:        window,
		SampleRate: p.cfg.SampleRate,
		Language:   p.cfg.Language,
	})
	p.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, "stt", "stt")
		slog.Warn("transcription failed, window abandoned", "err", err)
		return nil
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return nil
	}

	kind := EventPartial
	if final {
		kind = EventFinal
		if p.corrector != nil {
			text = p.corrector.Correct(text)
		}
	}
	p.metrics.RecordTranscription(ctx, string(kind))
	return []Event{{Type: kind, Text: text, Confidence: res.Confidence()}}
}
