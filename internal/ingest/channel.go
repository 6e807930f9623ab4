package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/vocalink/internal/observe"
	"github.com/MrWong99/vocalink/internal/registry"
	"github.com/MrWong99/vocalink/pkg/provider/stt"
	"github.com/MrWong99/vocalink/pkg/provider/vad"
)

// frameMessage is the inbound wire message on the ingest channel.
type frameMessage struct {
	Type string `json:"type"`
	Data string `json:"data"` // base64-encoded PCM16
	TS   int64  `json:"ts,omitempty"`
}

// outMessage is the outbound wire message on the ingest channel.
type outMessage struct {
	Type       string  `json:"type"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Event      string  `json:"event,omitempty"`
	Error      string  `json:"error,omitempty"`
	TS         int64   `json:"ts"`
}

// maxFrameMessage caps inbound message size; generous for base64 PCM16
// frames of at most a few hundred milliseconds.
const maxFrameMessage = 1 << 20

// Channel serves the per-session ingest websocket endpoint. One pipeline
// goroutine runs per accepted connection; sessions are resolved lazily per
// frame so a sweep mid-stream surfaces as an "invalid session" error on the
// next frame rather than a proactive close.
type Channel struct {
	Registry *registry.Registry
	Engine   stt.Engine
	Detector vad.Detector
	Config   Config

	// NewCorrector optionally builds a final-transcript corrector from the
	// session's keyword hints. Nil disables correction.
	NewCorrector func(keywords []string) Corrector

	// Sink optionally persists final transcripts. Persistence failures are
	// logged and never interrupt the stream.
	Sink FinalSink

	// Metrics defaults to observe.DefaultMetrics when nil.
	Metrics *observe.Metrics
}

// ServeHTTP upgrades the request and runs the frame loop until the client
// disconnects or the session disappears.
func (ch *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := ch.Registry.Get(id); err != nil {
		http.Error(w, "invalid session", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("ingest channel upgrade failed", "session", id, "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "ingest channel closed")
	conn.SetReadLimit(maxFrameMessage)

	metrics := ch.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	metrics.ActiveChannels.Add(r.Context(), 1)
	defer metrics.ActiveChannels.Add(r.Context(), -1)

	ch.run(r.Context(), conn, id, metrics)
	conn.Close(websocket.StatusNormalClosure, "")
}

func (ch *Channel) run(ctx context.Context, conn *websocket.Conn, id string, metrics *observe.Metrics) {
	var (
		pipeline *Pipeline
		hints    hintState
	)

	for {
		var msg frameMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				errors.Is(err, context.Canceled) {
				return
			}
			slog.Debug("ingest channel read ended", "session", id, "err", err)
			return
		}
		if msg.Type != "frame" {
			ch.send(ctx, conn, outMessage{Type: "error", Error: "unknown message type: " + msg.Type})
			continue
		}

		// Lazy session check: a swept session fails on the next frame.
		sess, err := ch.Registry.Get(id)
		if err != nil {
			ch.send(ctx, conn, outMessage{Type: "error", Error: "invalid session"})
			return
		}
		sess.Touch()

		frame, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			ch.send(ctx, conn, outMessage{Type: "error", Error: "frame data is not valid base64"})
			continue
		}

		if pipeline == nil {
			pipeline = ch.newPipeline(sess, metrics)
		}
		ch.applyHints(pipeline, sess, &hints)

		var events []Event
		if sess.STTEnabled() {
			events = pipeline.ProcessFrame(ctx, frame)
		} else {
			events = pipeline.BufferFrame(ctx, frame)
		}
		for _, ev := range events {
			if ev.Type == EventFinal && ch.Sink != nil {
				if err := ch.Sink.Write(ctx, sess.ID, ev.Text, ev.Confidence); err != nil {
					slog.Warn("transcript persistence failed", "session", sess.ID, "err", err)
				}
			}
			ch.send(ctx, conn, toWire(ev))
		}
	}
}

func (ch *Channel) newPipeline(sess *registry.Session, metrics *observe.Metrics) *Pipeline {
	cfg := ch.Config
	cfg.SampleRate = sess.Capture.SampleRate
	return New(ch.Engine, cfg, WithMetrics(metrics))
}

// hintState caches the corrector built from the session's keyword hints so
// it is not rebuilt on every frame.
type hintState struct {
	keywords  []string
	corrector Corrector
}

// applyHints pushes the session's current recognition hints into the
// pipeline. enable-stt (and its language, keyword, and vad arguments) may
// arrive after the first frame of a buffering-only stream, so hints are
// re-read on every frame rather than captured once.
func (ch *Channel) applyHints(p *Pipeline, sess *registry.Session, st *hintState) {
	var det vad.Detector
	if ch.Detector != nil && sess.VAD() {
		det = ch.Detector
	}

	kw := sess.Keywords()
	if !slices.Equal(kw, st.keywords) {
		st.keywords = kw
		st.corrector = nil
		if ch.NewCorrector != nil && len(kw) > 0 {
			st.corrector = ch.NewCorrector(kw)
		}
	}

	p.SetHints(sess.Language(), det, st.corrector)
}

func (ch *Channel) send(ctx context.Context, conn *websocket.Conn, msg outMessage) {
	msg.TS = time.Now().UnixMilli()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		slog.Debug("ingest channel write failed", "err", err)
	}
}

// toWire converts a pipeline event into its wire representation.
func toWire(ev Event) outMessage {
	switch ev.Type {
	case EventPartial, EventFinal:
		return outMessage{Type: string(ev.Type), Text: ev.Text, Confidence: ev.Confidence}
	default:
		return outMessage{Type: "event", Event: ev.Notice}
	}
}
