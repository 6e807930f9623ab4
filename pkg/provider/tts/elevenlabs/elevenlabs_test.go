package elevenlabs_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/vocalink/pkg/provider/tts"
	"github.com/MrWong99/vocalink/pkg/provider/tts/elevenlabs"
)

// fakeServer mimics the ElevenLabs stream-input endpoint: it reads the BOI
// handshake and text messages, then streams the given audio as two chunks.
func fakeServer(t *testing.T, audio []byte, recordPath *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*recordPath = r.URL.Path + "?" + r.URL.RawQuery

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()

		// BOI, text, flush.
		for range 3 {
			var msg map[string]any
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				t.Errorf("read client message: %v", err)
				return
			}
		}

		half := len(audio) / 2
		for _, chunk := range [][]byte{audio[:half], audio[half:]} {
			msg := map[string]any{"audio": base64.StdEncoding.EncodeToString(chunk)}
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				t.Errorf("write audio: %v", err)
				return
			}
		}
		wsjson.Write(ctx, conn, map[string]any{"isFinal": true})
	}))
}

func TestSynthesize(t *testing.T) {
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	var path string
	srv := fakeServer(t, want, &path)
	defer srv.Close()

	e, err := elevenlabs.New("key",
		elevenlabs.WithBaseURL("ws"+strings.TrimPrefix(srv.URL, "http")),
		elevenlabs.WithDefaultVoice("test-voice"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pcm, rate, err := e.Synthesize(ctx, tts.Request{Text: "hello", SampleRate: 16000})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if rate != 16000 {
		t.Errorf("rate = %d, want 16000", rate)
	}
	if string(pcm) != string(want) {
		t.Errorf("pcm = %v, want %v", pcm, want)
	}
	if !strings.Contains(path, "/test-voice/") || !strings.Contains(path, "output_format=pcm_16000") {
		t.Errorf("endpoint = %q, want voice and pcm_16000 format", path)
	}
}

func TestSynthesizeUnsupportedRateFallsBack(t *testing.T) {
	var path string
	srv := fakeServer(t, []byte{1, 2}, &path)
	defer srv.Close()

	e, err := elevenlabs.New("key", elevenlabs.WithBaseURL("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, rate, err := e.Synthesize(ctx, tts.Request{Text: "hi", SampleRate: 44100})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if rate != 24000 {
		t.Errorf("rate = %d, want fallback 24000", rate)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := elevenlabs.New(""); err == nil {
		t.Error("empty apiKey accepted")
	}
}
