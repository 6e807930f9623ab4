// Package stt defines the Engine interface for Speech-to-Text backends.
//
// An STT engine wraps a batch transcription service (e.g., a local
// whisper.cpp server, the whisper.cpp CGO bindings, or the OpenAI audio API)
// behind a uniform window-at-a-time contract: the ingest pipeline submits a
// window of mono PCM16 audio and receives recognised text with per-segment
// confidence estimates.
//
// Engines may be absent at runtime. Availability is an explicit part of the
// contract — callers consult Available before submitting windows and treat
// ErrNotConfigured as a degraded-mode signal, never as a session failure.
//
// Implementations must be safe for concurrent use; multiple sessions may
// submit windows simultaneously.
package stt

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrNotConfigured is returned by Transcribe when no usable STT backend is
// present (missing binary, missing API key, unreachable server at
// construction time). Callers should degrade to buffering-only operation.
var ErrNotConfigured = errors.New("stt engine is not configured")

// Window is one analysis window of audio submitted for transcription.
type Window struct {
	// PCM is raw 16-bit signed little-endian mono audio.
	PCM []byte

	// SampleRate is the sample rate of PCM in Hz.
	SampleRate int

	// Language is an optional BCP-47 recognition hint (e.g., "en", "de").
	// Empty lets the engine auto-detect, if supported.
	Language string
}

// Segment is one recognised span within a window.
type Segment struct {
	// Text is the recognised text for this span.
	Text string

	// Start and End are offsets relative to the window start.
	Start time.Duration
	End   time.Duration

	// AvgLogProb is the mean token log-probability reported by the engine
	// for this span. Engines without probability output report 0, which maps
	// to confidence 1.0.
	AvgLogProb float64
}

// Result is the outcome of transcribing one window.
type Result struct {
	// Text is the full recognised text, segments joined in order.
	Text string

	// Segments holds per-span detail when the engine provides it. May be
	// empty even when Text is not.
	Segments []Segment
}

// Confidence derives an overall confidence estimate in [0, 1]: the mean of
// exp(AvgLogProb) across segments. A result with no segments reports 0.
func (r Result) Confidence() float64 {
	if len(r.Segments) == 0 {
		return 0
	}
	var sum float64
	for _, seg := range r.Segments {
		sum += math.Exp(seg.AvgLogProb)
	}
	c := sum / float64(len(r.Segments))
	if c > 1 {
		c = 1
	}
	return c
}

// Engine is the abstraction over any STT backend.
type Engine interface {
	// Transcribe submits one window of audio and blocks until the engine
	// returns a result or an error. A window that contains no recognisable
	// speech yields a Result with empty Text and a nil error.
	//
	// Returns ErrNotConfigured (possibly wrapped) when no backend is usable.
	// Other errors are transient: the caller abandons the window and
	// continues with the next one.
	Transcribe(ctx context.Context, w Window) (Result, error)

	// Available reports whether the engine expects Transcribe calls to
	// succeed. Used by diagnostics endpoints and by the ingest pipeline's
	// degraded-mode reporting.
	Available() bool
}
