package server_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/vocalink/internal/config"
	"github.com/MrWong99/vocalink/internal/registry"
	"github.com/MrWong99/vocalink/internal/server"
	"github.com/MrWong99/vocalink/internal/transcript/postgres"
	"github.com/MrWong99/vocalink/pkg/provider/stt"
	sttmock "github.com/MrWong99/vocalink/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/vocalink/pkg/provider/tts/mock"
)

// controlMessage mirrors the control channel wire envelope.
type controlMessage struct {
	ID     string          `json:"id,omitempty"`
	Op     string          `json:"op,omitempty"`
	Args   any             `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// dataMessage mirrors both data-channel output envelopes; the field sets do
// not collide.
type dataMessage struct {
	Type       string  `json:"type"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Data       string  `json:"data,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func newTestServer(t *testing.T, sttEngine *sttmock.Engine, ttsEngine *ttsmock.Engine) *httptest.Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.ApplyDefaults()

	srv := server.New(cfg, server.Dependencies{
		Registry: registry.New(),
		STT:      sttEngine,
		TTS:      ttsEngine,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(ctx context.Context, t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(httpURL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial %s: %v", httpURL, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// invoke performs one control operation and decodes its result into out.
func invoke(ctx context.Context, t *testing.T, conn *websocket.Conn, op string, args any, out any) {
	t.Helper()
	if err := wsjson.Write(ctx, conn, controlMessage{ID: "t", Op: op, Args: args}); err != nil {
		t.Fatalf("%s write: %v", op, err)
	}
	var resp controlMessage
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		t.Fatalf("%s read: %v", op, err)
	}
	if resp.Error != nil {
		t.Fatalf("%s error = %s: %s", op, resp.Error.Code, resp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			t.Fatalf("%s decode result: %v", op, err)
		}
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	ts := newTestServer(t, &sttmock.Engine{}, &ttsmock.Engine{})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/statusz")
	if err != nil {
		t.Fatalf("GET /statusz: %v", err)
	}
	defer resp.Body.Close()
	var status struct {
		STTAvailable bool `json:"stt_available"`
		TTSAvailable bool `json:"tts_available"`
		VADAvailable bool `json:"vad_available"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode /statusz: %v", err)
	}
	if !status.STTAvailable || !status.TTSAvailable {
		t.Errorf("statusz = %+v, want stt and tts available", status)
	}
	if status.VADAvailable {
		t.Error("statusz reports VAD available with no detector configured")
	}
}

func TestReadyzFailsWhenEngineDown(t *testing.T) {
	ts := newTestServer(t, &sttmock.Engine{Unavailable: true}, &ttsmock.Engine{})

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", resp.StatusCode)
	}
}

func TestDataChannelRejectsUnknownSession(t *testing.T) {
	ts := newTestServer(t, &sttmock.Engine{}, &ttsmock.Engine{})

	for _, path := range []string{"/v1/sessions/ghost/ingest", "/v1/sessions/ghost/synthesis"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

// memStore is an in-memory transcript store standing in for the PostgreSQL
// sink.
type memStore struct {
	mu   sync.Mutex
	rows []postgres.Utterance
}

func (s *memStore) Write(_ context.Context, sessionID, text string, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := postgres.Utterance{SessionID: sessionID, Text: text, Confidence: confidence, CreatedAt: time.Now()}
	s.rows = append([]postgres.Utterance{u}, s.rows...)
	return nil
}

func (s *memStore) Recent(_ context.Context, sessionID string, limit int) ([]postgres.Utterance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []postgres.Utterance
	for _, u := range s.rows {
		if u.SessionID != sessionID {
			continue
		}
		out = append(out, u)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func TestTranscriptsRouteServesRecentFinals(t *testing.T) {
	store := &memStore{}
	reg := registry.New()
	sess, err := reg.Allocate(registry.CaptureConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	srv := server.New(cfg, server.Dependencies{Registry: reg, Sink: store})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx := context.Background()
	for _, text := range []string{"first", "second", "third"} {
		if err := store.Write(ctx, sess.ID, text, 0.9); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	resp, err := http.Get(ts.URL + "/v1/sessions/" + sess.ID + "/transcripts?limit=2")
	if err != nil {
		t.Fatalf("GET transcripts: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("transcripts status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Utterances []postgres.Utterance `json:"utterances"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode transcripts: %v", err)
	}
	if len(body.Utterances) != 2 {
		t.Fatalf("utterances = %d, want 2", len(body.Utterances))
	}
	if body.Utterances[0].Text != "third" || body.Utterances[1].Text != "second" {
		t.Errorf("utterances = %+v, want newest first", body.Utterances)
	}

	cases := []struct {
		path string
		want int
	}{
		{"/v1/sessions/ghost/transcripts", http.StatusNotFound},
		{"/v1/sessions/" + sess.ID + "/transcripts?limit=bogus", http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, err := http.Get(ts.URL + tc.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("GET %s status = %d, want %d", tc.path, resp.StatusCode, tc.want)
		}
	}
}

func TestTranscriptsRouteAbsentWithoutReadableSink(t *testing.T) {
	ts := newTestServer(t, &sttmock.Engine{}, &ttsmock.Engine{})

	resp, err := http.Get(ts.URL + "/v1/sessions/any/transcripts")
	if err != nil {
		t.Fatalf("GET transcripts: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("transcripts status = %d, want 404", resp.StatusCode)
	}
}

// TestDuplexFlow walks the full surface: allocate a session over the control
// channel, enable both pipelines, stream one speech window through ingest,
// and read a synthesized stream back on the synthesis channel.
func TestDuplexFlow(t *testing.T) {
	sttEngine := &sttmock.Engine{Results: []stt.Result{{Text: "hello there"}}}
	ttsEngine := &ttsmock.Engine{PCM: make([]byte, 7680), Rate: 24000}
	ts := newTestServer(t, sttEngine, ttsEngine)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ctl := dial(ctx, t, ts.URL+"/v1/control")

	var alloc struct {
		SessionID         string `json:"session_id"`
		IngestEndpoint    string `json:"ingest_endpoint"`
		SynthesisEndpoint string `json:"synthesis_endpoint"`
	}
	invoke(ctx, t, ctl, "allocate-session", map[string]any{"sample_rate": 16000}, &alloc)
	if alloc.SessionID == "" {
		t.Fatal("allocate-session returned empty session_id")
	}

	invoke(ctx, t, ctl, "enable-stt", map[string]any{"session_id": alloc.SessionID}, nil)
	invoke(ctx, t, ctl, "enable-tts", map[string]any{"session_id": alloc.SessionID}, nil)

	// One 400 ms frame at 16 kHz fills exactly one analysis window.
	ingestConn := dial(ctx, t, ts.URL+alloc.IngestEndpoint)
	frame := base64.StdEncoding.EncodeToString(make([]byte, 12800))
	if err := wsjson.Write(ctx, ingestConn, map[string]any{"type": "frame", "data": frame}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	var partial dataMessage
	if err := wsjson.Read(ctx, ingestConn, &partial); err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if partial.Type != "partial" || partial.Text != "hello there" {
		t.Errorf("transcript = %+v, want partial %q", partial, "hello there")
	}

	// 7680 bytes at 24 kHz is two 80 ms chunks.
	synthConn := dial(ctx, t, ts.URL+"/v1/sessions/"+alloc.SessionID+"/synthesis")
	if err := wsjson.Write(ctx, synthConn, map[string]any{"type": "synthesize", "text": "hi"}); err != nil {
		t.Fatalf("write synthesize: %v", err)
	}

	var chunks int
	for {
		var msg dataMessage
		if err := wsjson.Read(ctx, synthConn, &msg); err != nil {
			t.Fatalf("read synthesis stream: %v", err)
		}
		switch msg.Type {
		case "audio_chunk":
			chunks++
		case "done":
			if msg.Reason != "completed" {
				t.Errorf("done reason = %q, want completed", msg.Reason)
			}
			if chunks != 2 {
				t.Errorf("chunks = %d, want 2", chunks)
			}
			return
		default:
			t.Fatalf("unexpected message %+v", msg)
		}
	}
}
