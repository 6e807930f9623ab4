// Package mock provides a test double for the stt.Engine interface.
//
// Use Engine to script transcription results and to verify which windows the
// ingest pipeline actually submits:
//
//	e := &mock.Engine{
//	    Results: []stt.Result{{Text: "hello", Segments: []stt.Segment{{Text: "hello"}}}},
//	}
//	res, err := e.Transcribe(ctx, window)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vocalink/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context

	// Window is the window passed to Transcribe. PCM is a copy taken at call
	// time so later buffer reuse by the caller cannot corrupt the record.
	Window stt.Window
}

// Engine is a mock implementation of stt.Engine.
type Engine struct {
	mu sync.Mutex

	// Results is the sequence of results returned by successive Transcribe
	// calls. Once exhausted, the last element repeats; when empty, Transcribe
	// returns the zero Result.
	Results []stt.Result

	// Err, if non-nil, is returned by every Transcribe call instead of a
	// result.
	Err error

	// Unavailable makes Available report false and Transcribe return
	// stt.ErrNotConfigured.
	Unavailable bool

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

var _ stt.Engine = (*Engine)(nil)

// Transcribe records the call and returns the next scripted result.
func (e *Engine) Transcribe(ctx context.Context, w stt.Window) (stt.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pcm := make([]byte, len(w.PCM))
	copy(pcm, w.PCM)
	w.PCM = pcm
	e.TranscribeCalls = append(e.TranscribeCalls, TranscribeCall{Ctx: ctx, Window: w})

	if e.Unavailable {
		return stt.Result{}, stt.ErrNotConfigured
	}
	if e.Err != nil {
		return stt.Result{}, e.Err
	}
	if len(e.Results) == 0 {
		return stt.Result{}, nil
	}
	idx := len(e.TranscribeCalls) - 1
	if idx >= len(e.Results) {
		idx = len(e.Results) - 1
	}
	return e.Results[idx], nil
}

// Available reports the configured availability.
func (e *Engine) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.Unavailable
}

// Calls returns a snapshot of the recorded Transcribe calls.
func (e *Engine) Calls() []TranscribeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TranscribeCall, len(e.TranscribeCalls))
	copy(out, e.TranscribeCalls)
	return out
}
