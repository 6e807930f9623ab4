package resilience

import (
	"context"

	"github.com/MrWong99/vocalink/pkg/provider/stt"
)

// STTEngine wraps a transcription engine with a circuit breaker. While the
// breaker is open the engine reports unavailable, so the ingest pipeline
// degrades to its "stt not configured" events instead of timing out on
// every window; once the reset timeout elapses, probe windows flow again.
type STTEngine struct {
	inner   stt.Engine
	breaker *Breaker
}

var _ stt.Engine = (*STTEngine)(nil)

// NewSTTEngine wraps inner with a breaker configured by cfg.
func NewSTTEngine(inner stt.Engine, cfg BreakerConfig) *STTEngine {
	if cfg.Name == "" {
		cfg.Name = "stt"
	}
	return &STTEngine{inner: inner, breaker: NewBreaker(cfg)}
}

// Transcribe forwards the window through the breaker.
func (e *STTEngine) Transcribe(ctx context.Context, w stt.Window) (stt.Result, error) {
	var res stt.Result
	err := e.breaker.Do(func() error {
		var innerErr error
		res, innerErr = e.inner.Transcribe(ctx, w)
		return innerErr
	})
	if err != nil {
		return stt.Result{}, err
	}
	return res, nil
}

// Available reports false while the breaker is open.
func (e *STTEngine) Available() bool {
	return e.inner.Available() && e.breaker.State() != StateOpen
}

// BreakerState exposes the breaker state for diagnostics.
func (e *STTEngine) BreakerState() State {
	return e.breaker.State()
}
