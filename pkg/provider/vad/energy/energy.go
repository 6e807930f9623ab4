// Package energy implements the vad.Detector interface with a plain
// root-mean-square energy threshold. It is model-free and deterministic,
// which makes it the default detector: good enough to gate transcription on
// obvious silence, cheap enough to run on every frame.
package energy

import (
	"errors"
	"fmt"

	"github.com/MrWong99/vocalink/pkg/audio"
	"github.com/MrWong99/vocalink/pkg/provider/vad"
)

// DefaultThreshold is the RMS level (in 16-bit PCM units, max 32767) above
// which a frame is classified as speech. 300 corresponds to near-silence.
const DefaultThreshold = 300.0

// minFrameSamples is the minimum number of samples needed for a stable RMS
// estimate; shorter frames are rejected and treated as pass-through upstream.
const minFrameSamples = 40

// Compile-time assertion that Detector implements vad.Detector.
var _ vad.Detector = (*Detector)(nil)

// Option is a functional option for configuring a Detector.
type Option func(*Detector)

// WithThreshold overrides the RMS speech threshold. Values must be positive.
func WithThreshold(threshold float64) Option {
	return func(d *Detector) {
		d.threshold = threshold
	}
}

// Detector classifies frames by RMS energy. Stateless and safe for
// concurrent use.
type Detector struct {
	threshold float64
}

// New creates an energy Detector with the supplied options.
func New(opts ...Option) (*Detector, error) {
	d := &Detector{threshold: DefaultThreshold}
	for _, o := range opts {
		o(d)
	}
	if d.threshold <= 0 {
		return nil, fmt.Errorf("energy: threshold %.1f must be positive", d.threshold)
	}
	return d, nil
}

// Available always reports true.
func (d *Detector) Available() bool { return true }

// errFrameTooShort is returned for frames below the minimum RMS window.
var errFrameTooShort = errors.New("frame too short to classify")

// Classify computes the frame's RMS energy and compares it to the threshold.
// The probability is the energy relative to the threshold, saturating at 1.
func (d *Detector) Classify(frame []byte) (vad.Decision, error) {
	if len(frame)/audio.BytesPerSample < minFrameSamples {
		return vad.Decision{}, fmt.Errorf("energy: %w (%d bytes)", errFrameTooShort, len(frame))
	}
	rms := audio.RMS(frame)
	p := rms / (2 * d.threshold)
	if p > 1 {
		p = 1
	}
	return vad.Decision{Speech: rms >= d.threshold, Probability: p}, nil
}
