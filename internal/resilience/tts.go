package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/vocalink/pkg/provider/tts"
)

// ErrAllFailed is returned when every engine in a [TTSChain] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("all synthesis engines failed")

// chainEntry pairs an engine with its dedicated breaker.
type chainEntry struct {
	name    string
	engine  tts.Engine
	breaker *Breaker
}

// TTSChain implements [tts.Engine] with automatic failover across multiple
// synthesis backends. Each backend has its own circuit breaker; entries are
// tried in registration order.
type TTSChain struct {
	entries []chainEntry
	cfg     BreakerConfig
}

var _ tts.Engine = (*TTSChain)(nil)

// NewTTSChain creates a chain with primary as the preferred backend.
func NewTTSChain(primary tts.Engine, primaryName string, cfg BreakerConfig) *TTSChain {
	c := &TTSChain{cfg: cfg}
	c.add(primaryName, primary)
	return c
}

// AddFallback registers an additional engine tried after the ones already
// registered.
func (c *TTSChain) AddFallback(name string, engine tts.Engine) {
	c.add(name, engine)
}

func (c *TTSChain) add(name string, engine tts.Engine) {
	cfg := c.cfg
	cfg.Name = name
	c.entries = append(c.entries, chainEntry{
		name:    name,
		engine:  engine,
		breaker: NewBreaker(cfg),
	})
}

// Synthesize tries each engine in order until one succeeds. Unavailable
// engines and open breakers are skipped.
func (c *TTSChain) Synthesize(ctx context.Context, req tts.Request) ([]byte, int, error) {
	var lastErr error
	for i := range c.entries {
		entry := &c.entries[i]
		if !entry.engine.Available() {
			continue
		}

		var (
			pcm  []byte
			rate int
		)
		err := entry.breaker.Do(func() error {
			var innerErr error
			pcm, rate, innerErr = entry.engine.Synthesize(ctx, req)
			return innerErr
		})
		if err == nil {
			return pcm, rate, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping synthesis engine (circuit open)", "engine", entry.name)
		} else {
			slog.Warn("synthesis engine failed, trying next",
				"engine", entry.name, "err", err)
		}
	}
	if lastErr == nil {
		lastErr = tts.ErrNotConfigured
	}
	return nil, 0, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// Available reports whether any engine in the chain could currently serve a
// request.
func (c *TTSChain) Available() bool {
	for i := range c.entries {
		entry := &c.entries[i]
		if entry.engine.Available() && entry.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}
