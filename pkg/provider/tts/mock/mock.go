// Package mock provides a test double for the tts.Engine interface.
//
// Use Engine to feed a controlled audio buffer to the synthesis pipeline and
// to verify the requests that reach the TTS backend:
//
//	e := &mock.Engine{PCM: make([]byte, 6400), Rate: 16000}
//	pcm, rate, err := e.Synthesize(ctx, tts.Request{Text: "hello"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vocalink/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context

	// Request is the request passed to Synthesize.
	Request tts.Request
}

// Engine is a mock implementation of tts.Engine.
type Engine struct {
	mu sync.Mutex

	// PCM is the audio buffer returned by every Synthesize call.
	PCM []byte

	// Rate is the sample rate reported alongside PCM. Defaults to 24000
	// when zero.
	Rate int

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// Unavailable makes Available report false and Synthesize return
	// tts.ErrNotConfigured.
	Unavailable bool

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

var _ tts.Engine = (*Engine)(nil)

// Synthesize records the call and returns the scripted buffer.
func (e *Engine) Synthesize(ctx context.Context, req tts.Request) ([]byte, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.SynthesizeCalls = append(e.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Request: req})

	if e.Unavailable {
		return nil, 0, tts.ErrNotConfigured
	}
	if e.Err != nil {
		return nil, 0, e.Err
	}
	rate := e.Rate
	if rate == 0 {
		rate = 24000
	}
	return e.PCM, rate, nil
}

// Available reports the configured availability.
func (e *Engine) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.Unavailable
}

// Calls returns a snapshot of the recorded Synthesize calls.
func (e *Engine) Calls() []SynthesizeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SynthesizeCall, len(e.SynthesizeCalls))
	copy(out, e.SynthesizeCalls)
	return out
}
