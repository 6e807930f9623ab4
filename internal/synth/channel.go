package synth

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/vocalink/internal/observe"
	"github.com/MrWong99/vocalink/internal/registry"
)

// requestMessage is the inbound wire message on the synthesis channel.
type requestMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// outMessage is the outbound wire message on the synthesis channel.
type outMessage struct {
	Type   string `json:"type"`
	Data   string `json:"data,omitempty"` // base64-encoded PCM16
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
	TS     int64  `json:"ts"`
}

// maxRequestMessage caps inbound message size on the synthesis channel.
const maxRequestMessage = 1 << 16

// Channel serves the per-session synthesis websocket endpoint. Requests on
// one connection are processed sequentially in arrival order; chunks for one
// request are emitted strictly in position order.
type Channel struct {
	Registry    *registry.Registry
	Synthesizer *Synthesizer

	// Metrics defaults to observe.DefaultMetrics when nil.
	Metrics *observe.Metrics
}

// ServeHTTP upgrades the request and runs the synthesis loop until the
// client disconnects or the session disappears.
func (ch *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := ch.Registry.Get(id); err != nil {
		http.Error(w, "invalid session", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("synthesis channel upgrade failed", "session", id, "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "synthesis channel closed")
	conn.SetReadLimit(maxRequestMessage)

	metrics := ch.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	metrics.ActiveChannels.Add(r.Context(), 1)
	defer metrics.ActiveChannels.Add(r.Context(), -1)

	ch.run(r.Context(), conn, id)
	conn.Close(websocket.StatusNormalClosure, "")
}

func (ch *Channel) run(ctx context.Context, conn *websocket.Conn, id string) {
	sink := &wsSink{ctx: ctx, conn: conn}

	for {
		var msg requestMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				errors.Is(err, context.Canceled) {
				return
			}
			slog.Debug("synthesis channel read ended", "session", id, "err", err)
			return
		}
		if msg.Type != "synthesize" {
			sink.Error("unknown message type: " + msg.Type)
			continue
		}

		// Lazy session check: a swept session fails on the next request.
		sess, err := ch.Registry.Get(id)
		if err != nil {
			sink.Error("invalid session")
			return
		}
		sess.Touch()

		if !sess.TTSEnabled() {
			sink.Error("tts not enabled for this session")
			continue
		}

		if err := ch.Synthesizer.Speak(ctx, sess, msg.Text, sink); err != nil {
			slog.Debug("synthesis stream ended", "session", id, "err", err)
			return
		}
	}
}

// wsSink streams synthesizer output onto the websocket.
type wsSink struct {
	ctx  context.Context
	conn *websocket.Conn
}

var _ Sink = (*wsSink)(nil)

func (s *wsSink) Chunk(pcm []byte) error {
	return s.write(outMessage{Type: "audio_chunk", Data: base64.StdEncoding.EncodeToString(pcm)})
}

func (s *wsSink) Done(reason Reason) error {
	return s.write(outMessage{Type: "done", Reason: string(reason)})
}

func (s *wsSink) Error(msg string) error {
	return s.write(outMessage{Type: "error", Error: msg})
}

func (s *wsSink) write(msg outMessage) error {
	msg.TS = time.Now().UnixMilli()
	return wsjson.Write(s.ctx, s.conn, msg)
}
