// Package tts defines the Engine interface for Text-to-Speech backends.
//
// A TTS engine wraps a speech synthesis service (e.g., ElevenLabs, the OpenAI
// speech API, or the built-in placeholder tone generator) behind a uniform
// whole-request contract: the synthesis pipeline submits text and receives a
// complete PCM16 buffer at the engine's native sample rate. Engines that
// stream internally concatenate their chunks before returning; real-time
// pacing is the synthesis pipeline's job, not the engine's.
//
// Implementations must be safe for concurrent use; multiple sessions may
// synthesise simultaneously.
package tts

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by Synthesize when no usable TTS backend is
// present. The synthesis pipeline falls back to the placeholder tone
// generator rather than failing the request.
var ErrNotConfigured = errors.New("tts engine is not configured")

// Request carries one synthesis request.
type Request struct {
	// Text is the text to speak. The pipeline guarantees it is non-empty and
	// trimmed before the engine sees it.
	Text string

	// Voice is the engine-specific voice identifier. Empty selects the
	// engine's default voice.
	Voice string

	// SampleRate is the desired output rate in Hz. Engines that cannot
	// honour it return audio at their native rate; the caller resamples.
	SampleRate int

	// Speed, Pitch, and Style are best-effort prosody hints in engine-native
	// units. Engines are free to ignore any of them.
	Speed float64
	Pitch float64
	Style string
}

// Engine is the abstraction over any TTS backend.
type Engine interface {
	// Synthesize converts req.Text to a complete buffer of raw PCM16 mono
	// audio and reports the sample rate the buffer was produced at.
	//
	// Returns ErrNotConfigured (possibly wrapped) when no backend is usable.
	// Other errors are transient: the caller abandons the request and stays
	// ready for the next one.
	Synthesize(ctx context.Context, req Request) (pcm []byte, sampleRate int, err error)

	// Available reports whether the engine expects Synthesize calls to
	// succeed. Used by diagnostics endpoints and by fallback selection.
	Available() bool
}
