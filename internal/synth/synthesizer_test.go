package synth_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/vocalink/internal/bargein"
	"github.com/MrWong99/vocalink/internal/observe"
	"github.com/MrWong99/vocalink/internal/registry"
	"github.com/MrWong99/vocalink/internal/synth"
	"github.com/MrWong99/vocalink/pkg/audio"
	ttsmock "github.com/MrWong99/vocalink/pkg/provider/tts/mock"
)

// testSink records synthesizer output and can trigger barge-in actions from
// inside the stream via onChunk.
type testSink struct {
	mu      sync.Mutex
	chunks  [][]byte
	dones   []synth.Reason
	errs    []string
	onChunk func(index int)
}

var _ synth.Sink = (*testSink)(nil)

func (s *testSink) Chunk(pcm []byte) error {
	s.mu.Lock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.chunks = append(s.chunks, cp)
	idx := len(s.chunks) - 1
	cb := s.onChunk
	s.mu.Unlock()
	if cb != nil {
		cb(idx)
	}
	return nil
}

func (s *testSink) Done(reason synth.Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dones = append(s.dones, reason)
	return nil
}

func (s *testSink) Error(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, msg)
	return nil
}

func (s *testSink) concat() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, c := range s.chunks {
		out = append(out, c...)
	}
	return out
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newSession(t *testing.T) *registry.Session {
	t.Helper()
	sess, err := registry.New().Allocate(registry.CaptureConfig{})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	sess.EnableTTS("", 0)
	return sess
}

func TestSpeakRoundTrip(t *testing.T) {
	pcm := make([]byte, 1000)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	engine := &ttsmock.Engine{PCM: pcm, Rate: 24000}
	s := synth.New(engine,
		synth.WithChunkLen(5*time.Millisecond),
		synth.WithMetrics(testMetrics(t)),
	)
	sess := newSession(t)
	sink := &testSink{}

	if err := s.Speak(context.Background(), sess, "hello there", sink); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	if got := sink.concat(); !bytes.Equal(got, pcm) {
		t.Errorf("concatenated chunks = %d bytes, want the full %d-byte buffer intact", len(got), len(pcm))
	}
	if len(sink.dones) != 1 || sink.dones[0] != synth.ReasonCompleted {
		t.Errorf("dones = %v, want exactly one completed", sink.dones)
	}
	if sess.Speaking() {
		t.Error("session still marked speaking after completion")
	}
}

func TestSpeakEmptyText(t *testing.T) {
	engine := &ttsmock.Engine{PCM: []byte{1, 2}, Rate: 24000}
	s := synth.New(engine, synth.WithMetrics(testMetrics(t)))
	sink := &testSink{}

	if err := s.Speak(context.Background(), newSession(t), "   ", sink); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(sink.chunks) != 0 {
		t.Errorf("empty text produced %d chunks, want 0", len(sink.chunks))
	}
	if len(sink.dones) != 1 || sink.dones[0] != synth.ReasonEmptyText {
		t.Errorf("dones = %v, want exactly one empty_text", sink.dones)
	}
	if len(engine.Calls()) != 0 {
		t.Errorf("engine called for empty text")
	}
}

func TestSpeakCancelStopsStream(t *testing.T) {
	engine := &ttsmock.Engine{PCM: make([]byte, 10000), Rate: 24000}
	s := synth.New(engine,
		synth.WithChunkLen(5*time.Millisecond),
		synth.WithMetrics(testMetrics(t)),
	)
	sess := newSession(t)
	sink := &testSink{}
	sink.onChunk = func(index int) {
		if index == 0 {
			sess.Barge.Apply(bargein.ActionCancel)
		}
	}

	if err := s.Speak(context.Background(), sess, "long utterance", sink); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	if len(sink.chunks) != 1 {
		t.Errorf("chunks after cancel = %d, want 1 (no further chunks)", len(sink.chunks))
	}
	if len(sink.dones) != 1 || sink.dones[0] != synth.ReasonCanceled {
		t.Errorf("dones = %v, want exactly one canceled", sink.dones)
	}
	if got := sess.Barge.State(); got != bargein.StateNormal {
		t.Errorf("barge state after consumed cancel = %v, want normal", got)
	}

	// The cancel flag must not leak: a subsequent request runs to
	// completion.
	sink2 := &testSink{}
	if err := s.Speak(context.Background(), sess, "again", sink2); err != nil {
		t.Fatalf("second Speak: %v", err)
	}
	if len(sink2.dones) != 1 || sink2.dones[0] != synth.ReasonCompleted {
		t.Errorf("second request dones = %v, want exactly one completed", sink2.dones)
	}
}

func TestSpeakPauseHoldsThenResumes(t *testing.T) {
	engine := &ttsmock.Engine{PCM: make([]byte, 480), Rate: 24000}
	s := synth.New(engine,
		synth.WithChunkLen(5*time.Millisecond),
		synth.WithMetrics(testMetrics(t)),
	)
	sess := newSession(t)
	sess.Barge.Apply(bargein.ActionPause)

	timer := time.AfterFunc(50*time.Millisecond, func() {
		sess.Barge.Apply(bargein.ActionResume)
	})
	defer timer.Stop()

	start := time.Now()
	sink := &testSink{}
	if err := s.Speak(context.Background(), sess, "held", sink); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("stream finished in %v while paused for 50ms", elapsed)
	}
	if len(sink.dones) != 1 || sink.dones[0] != synth.ReasonCompleted {
		t.Errorf("dones = %v, want exactly one completed", sink.dones)
	}
	if got := sink.concat(); len(got) != 480 {
		t.Errorf("concatenated chunks = %d bytes, want 480", len(got))
	}
}

func TestSpeakCancelWhilePaused(t *testing.T) {
	engine := &ttsmock.Engine{PCM: make([]byte, 10000), Rate: 24000}
	s := synth.New(engine,
		synth.WithChunkLen(5*time.Millisecond),
		synth.WithMetrics(testMetrics(t)),
	)
	sess := newSession(t)
	sess.Barge.Apply(bargein.ActionPause)

	timer := time.AfterFunc(30*time.Millisecond, func() {
		sess.Barge.Apply(bargein.ActionCancel)
	})
	defer timer.Stop()

	sink := &testSink{}
	if err := s.Speak(context.Background(), sess, "interrupted", sink); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	if len(sink.chunks) != 0 {
		t.Errorf("chunks = %d, want 0 (canceled before any emission)", len(sink.chunks))
	}
	if len(sink.dones) != 1 || sink.dones[0] != synth.ReasonCanceled {
		t.Errorf("dones = %v, want exactly one canceled", sink.dones)
	}
	// Cancel clears only the flag; the pause latch survives.
	if got := sess.Barge.State(); got != bargein.StatePaused {
		t.Errorf("barge state = %v, want paused", got)
	}
}

func TestSpeakToneFallback(t *testing.T) {
	engine := &ttsmock.Engine{Unavailable: true}
	s := synth.New(engine,
		synth.WithChunkLen(50*time.Millisecond),
		synth.WithMetrics(testMetrics(t)),
	)
	sink := &testSink{}

	if err := s.Speak(context.Background(), newSession(t), "hello", sink); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	got := sink.concat()
	if len(got) == 0 {
		t.Fatal("tone fallback produced no audio")
	}
	dur := audio.Duration(len(got), 24000)
	if dur < audio.ToneMinDuration || dur > audio.ToneMaxDuration {
		t.Errorf("tone duration = %v, want within [%v, %v]", dur, audio.ToneMinDuration, audio.ToneMaxDuration)
	}
	if len(sink.dones) != 1 || sink.dones[0] != synth.ReasonCompleted {
		t.Errorf("dones = %v, want exactly one completed", sink.dones)
	}
	if len(engine.Calls()) != 0 {
		t.Errorf("unavailable engine was called")
	}
}

func TestSpeakEngineFailureAbandonsRequest(t *testing.T) {
	engine := &ttsmock.Engine{Err: errors.New("voice service down")}
	s := synth.New(engine, synth.WithMetrics(testMetrics(t)))
	sink := &testSink{}

	if err := s.Speak(context.Background(), newSession(t), "hello", sink); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(sink.chunks) != 0 || len(sink.dones) != 0 {
		t.Errorf("failed request emitted chunks=%d dones=%v, want none", len(sink.chunks), sink.dones)
	}
	if len(sink.errs) != 1 {
		t.Errorf("errs = %v, want exactly one engine error", sink.errs)
	}
}
