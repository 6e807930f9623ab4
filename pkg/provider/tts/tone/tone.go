// Package tone provides the deterministic placeholder TTS engine: a
// fixed-frequency sine tone whose duration is a clamped monotonic function of
// the input text length. It exists to prove the synthesis data path when no
// real engine is configured and is always available.
package tone

import (
	"context"

	"github.com/MrWong99/vocalink/pkg/audio"
	"github.com/MrWong99/vocalink/pkg/provider/tts"
)

// DefaultSampleRate is the rate used when a request does not specify one.
const DefaultSampleRate = 24000

// Compile-time assertion that Engine implements tts.Engine.
var _ tts.Engine = (*Engine)(nil)

// Engine is the placeholder tone generator. The zero value is ready to use.
type Engine struct{}

// New returns a ready-to-use tone Engine.
func New() *Engine { return &Engine{} }

// Available always reports true; the tone generator has no dependencies.
func (e *Engine) Available() bool { return true }

// Synthesize returns a sine tone sized by req.Text at req.SampleRate (or
// DefaultSampleRate when unset). All prosody hints are ignored.
func (e *Engine) Synthesize(ctx context.Context, req tts.Request) ([]byte, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	rate := req.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return audio.GenerateTone(audio.ToneDuration(req.Text), rate), rate, nil
}
