// Package ingest implements the per-session speech-to-text pipeline: a
// capped FIFO sample buffer, a voice-activity gate, and a windowed
// transcription loop driven by frames arriving on the session's ingest
// data channel.
package ingest

// Buffer is a capped append-only FIFO of raw PCM16 bytes awaiting analysis.
// When an append would exceed the cap the oldest bytes are dropped first, so
// the retained bytes are always the most recently appended suffix. Live
// audio must never block on memory growth, so overflow is lossy rather than
// an error.
//
// A Buffer is owned by exactly one pipeline goroutine and is not safe for
// concurrent use.
type Buffer struct {
	data []byte
	max  int
}

// NewBuffer creates a Buffer that retains at most max bytes.
func NewBuffer(max int) *Buffer {
	return &Buffer{max: max}
}

// Append adds b to the buffer, trimming the oldest bytes if the total would
// exceed the cap. It returns the number of bytes trimmed, zero in the common
// case.
func (buf *Buffer) Append(b []byte) int {
	buf.data = append(buf.data, b...)
	if len(buf.data) <= buf.max {
		return 0
	}
	trimmed := len(buf.data) - buf.max
	buf.data = append(buf.data[:0], buf.data[trimmed:]...)
	return trimmed
}

// Len returns the number of buffered bytes.
func (buf *Buffer) Len() int {
	return len(buf.data)
}

// Peek returns a copy of the first n buffered bytes. It panics if fewer than
// n bytes are buffered, the caller checks Len first.
func (buf *Buffer) Peek(n int) []byte {
	out := make([]byte, n)
	copy(out, buf.data[:n])
	return out
}

// Advance discards the first n buffered bytes. Advancing past the end clears
// the buffer.
func (buf *Buffer) Advance(n int) {
	if n >= len(buf.data) {
		buf.data = buf.data[:0]
		return
	}
	buf.data = append(buf.data[:0], buf.data[n:]...)
}

// Reset discards all buffered bytes.
func (buf *Buffer) Reset() {
	buf.data = buf.data[:0]
}
