// Package vad defines the Detector interface for Voice Activity Detection
// backends.
//
// A VAD detector classifies one short frame of PCM16 audio as speech or
// silence. It gates the ingest pipeline's transcription stage so that pure
// silence never reaches the STT engine. Detection is synchronous by design:
// Classify returns immediately, making it suitable for the per-frame hot
// path.
//
// Implementations must be safe for concurrent use across sessions.
package vad

// Decision is the classification result for a single frame.
type Decision struct {
	// Speech reports whether the frame contains speech.
	Speech bool

	// Probability is the speech likelihood score in [0, 1]. Detectors
	// without a probabilistic model report 0 or 1.
	Probability float64
}

// Detector is the abstraction over any VAD backend.
type Detector interface {
	// Classify analyses a single frame of raw little-endian PCM16 mono
	// audio. Frames too short for the detector to judge return an error;
	// the caller treats such frames as pass-through (buffered, unclassified).
	//
	// This method is called synchronously in the ingest loop; it must not
	// block.
	Classify(frame []byte) (Decision, error)

	// Available reports whether the detector is usable. An unavailable
	// detector disables the silence fast-exit; every frame proceeds to
	// windowing.
	Available() bool
}
