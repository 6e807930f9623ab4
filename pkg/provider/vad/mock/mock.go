// Package mock provides a test double for the vad.Detector interface.
package mock

import (
	"sync"

	"github.com/MrWong99/vocalink/pkg/provider/vad"
)

// Detector is a mock implementation of vad.Detector. Decisions are scripted
// per call; once the script is exhausted the Default decision repeats.
type Detector struct {
	mu sync.Mutex

	// Decisions is the sequence returned by successive Classify calls.
	Decisions []vad.Decision

	// Default is returned once Decisions is exhausted (or when empty).
	Default vad.Decision

	// Err, if non-nil, is returned by every Classify call.
	Err error

	// Unavailable makes Available report false.
	Unavailable bool

	// Frames records a copy of every frame passed to Classify, in order.
	Frames [][]byte
}

var _ vad.Detector = (*Detector)(nil)

// Classify records the frame and returns the next scripted decision.
func (d *Detector) Classify(frame []byte) (vad.Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.Frames = append(d.Frames, cp)

	if d.Err != nil {
		return vad.Decision{}, d.Err
	}
	idx := len(d.Frames) - 1
	if idx < len(d.Decisions) {
		return d.Decisions[idx], nil
	}
	return d.Default, nil
}

// Available reports the configured availability.
func (d *Detector) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.Unavailable
}
