// Package registry owns the set of live audio sessions: allocation, lookup,
// capability toggling, explicit destruction, and TTL-based expiry.
//
// The registry is the single coarse lock around the id → session map.
// Allocate, Destroy, and Sweep are infrequent relative to data-frame
// throughput, so one mutex is deliberate; per-session hot-path state (the
// ingest buffer, the barge-in controller) lives on the session itself and is
// never touched under the registry lock.
package registry

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/vocalink/internal/bargein"
)

// ErrInvalidSession is reported whenever an operation references an unknown
// or expired session id. It is a structured result, never a crash: control
// clients legitimately race against the sweep and must simply allocate again.
var ErrInvalidSession = errors.New("invalid session")

// CaptureConfig holds the capture parameters fixed at allocation time.
type CaptureConfig struct {
	// SampleRate is the capture rate in Hz. Valid: 16000, 24000.
	SampleRate int

	// FrameMs is the capture frame duration in milliseconds. Valid: 10–30.
	FrameMs int

	// Channels is the channel count. Only mono is supported.
	Channels int

	// NoiseSuppression and AutoGainControl are capture-side hints consumed
	// by the upstream capture/encode layer; the core stores but never
	// enforces them.
	NoiseSuppression bool
	AutoGainControl  bool
}

// Normalize fills zero values with defaults and validates the rest.
func (c *CaptureConfig) Normalize() error {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.FrameMs == 0 {
		c.FrameMs = 20
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.SampleRate != 16000 && c.SampleRate != 24000 {
		return fmt.Errorf("sample_rate %d is unsupported; valid values: 16000, 24000", c.SampleRate)
	}
	if c.FrameMs < 10 || c.FrameMs > 30 {
		return fmt.Errorf("frame_ms %d is out of range [10, 30]", c.FrameMs)
	}
	if c.Channels != 1 {
		return fmt.Errorf("channel_count %d is unsupported; only mono capture is supported", c.Channels)
	}
	return nil
}

// Session is one allocated audio conversation turn-sequence. Exported fields
// set at allocation are immutable; mutable flags are accessed through
// methods, which are safe for concurrent use.
type Session struct {
	// ID is the opaque unique session identifier, never reused.
	ID string

	// Capture holds the parameters fixed at allocation.
	Capture CaptureConfig

	// Barge is the barge-in controller shared by the control channel and
	// the synthesis pipeline.
	Barge bargein.Controller

	// CreatedAt is the allocation time.
	CreatedAt time.Time

	mu           sync.Mutex
	vadDisabled  bool
	sttEnabled   bool
	ttsEnabled   bool
	speaking     bool
	language     string
	keywords     []string
	voice        string
	synthRate    int
	lastActivity time.Time
}

// STTEnabled reports whether the ingest pipeline transcribes for this session.
func (s *Session) STTEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sttEnabled
}

// TTSEnabled reports whether the synthesis pipeline serves this session.
func (s *Session) TTSEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttsEnabled
}

// EnableSTT idempotently enables transcription and records the language and
// keyword hints. Empty arguments keep the previous values.
func (s *Session) EnableSTT(language string, keywords []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sttEnabled = true
	if language != "" {
		s.language = language
	}
	if len(keywords) > 0 {
		s.keywords = append([]string(nil), keywords...)
	}
	s.lastActivity = time.Now()
}

// SetVAD toggles the voice-activity gate for this session's ingest
// pipeline. VAD is on by default.
func (s *Session) SetVAD(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vadDisabled = !enabled
}

// VAD reports whether the voice-activity gate is enabled.
func (s *Session) VAD() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.vadDisabled
}

// Keywords returns the recognition keyword hints recorded by EnableSTT.
func (s *Session) Keywords() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keywords...)
}

// EnableTTS idempotently enables synthesis and records voice parameters.
// A targetRate of 0 keeps the previous (or server default) rate.
func (s *Session) EnableTTS(voice string, targetRate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttsEnabled = true
	if voice != "" {
		s.voice = voice
	}
	if targetRate > 0 {
		s.synthRate = targetRate
	}
	s.lastActivity = time.Now()
}

// Language returns the recognition hint recorded by EnableSTT.
func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// Voice returns the voice id and target sample rate recorded by EnableTTS.
func (s *Session) Voice() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice, s.synthRate
}

// SetSpeaking marks whether a synthesis chunk is actively being emitted.
func (s *Session) SetSpeaking(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = v
}

// Speaking reports whether the session is actively emitting audio.
func (s *Session) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Touch updates the activity timestamp. Called on every received frame and
// control message so the sweep spares live sessions.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// LastActivity returns the most recent activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Registry is the owned arena of live sessions keyed by id.
// All exported methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Allocate constructs a new session with the given capture parameters,
// registers it, and returns it. STT/TTS start disabled and the barge-in
// state starts normal.
func (r *Registry) Allocate(cfg CaptureConfig) (*Session, error) {
	s, _, err := r.Ensure("", cfg)
	return s, err
}

// Ensure returns the session for id if it exists, otherwise it creates and
// registers one. An empty id always creates a session under a fresh random
// id. The second return reports whether a session was created.
func (r *Registry) Ensure(id string, cfg CaptureConfig) (*Session, bool, error) {
	if id != "" {
		if s, err := r.Get(id); err == nil {
			return s, false, nil
		}
	}
	if err := cfg.Normalize(); err != nil {
		return nil, false, err
	}
	if id == "" {
		id = newSessionID()
	}

	now := time.Now()
	s := &Session{
		ID:           id,
		Capture:      cfg,
		CreatedAt:    now,
		lastActivity: now,
	}

	r.mu.Lock()
	// A concurrent Ensure for the same id may have won the race; keep the
	// registered instance so both callers share one session.
	if existing, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return existing, false, nil
	}
	r.sessions[id] = s
	n := len(r.sessions)
	r.mu.Unlock()

	slog.Info("session allocated",
		"session", s.ID,
		"sample_rate", cfg.SampleRate,
		"frame_ms", cfg.FrameMs,
		"active", n,
	)
	return s, true, nil
}

// Get returns the session for id, or ErrInvalidSession if unknown.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}
	return s, nil
}

// Destroy removes the session for id. Removing an unknown id is a no-op:
// an explicit stop may race with the sweep.
func (r *Registry) Destroy(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	if ok {
		slog.Info("session destroyed", "session", id, "active", n)
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes every session idle longer than ttl and returns the count
// removed.
func (r *Registry) Sweep(ttl time.Duration) int {
	now := time.Now()

	r.mu.Lock()
	var expired []string
	for id, s := range r.sessions {
		if now.Sub(s.LastActivity()) > ttl {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if len(expired) > 0 {
		slog.Info("swept expired sessions", "count", len(expired), "ttl", ttl)
	}
	return len(expired)
}

// newSessionID returns a 128-bit random hex identifier. Collisions are
// negligible at any realistic session count.
func newSessionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failure means the process environment is broken.
		panic("registry: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
