// Package control implements the websocket control channel: a single
// long-lived connection multiplexing named operations over a request/response
// envelope with correlation tokens.
//
// Protocol errors (malformed messages, unknown operations, bad arguments)
// produce structured error responses and never close the channel; only
// connection-level failures terminate the loop.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/vocalink/internal/observe"
	"github.com/MrWong99/vocalink/internal/registry"
)

// Error codes carried in structured error responses.
const (
	CodeParseError     = "parse_error"
	CodeMethodNotFound = "method_not_found"
	CodeInvalidArgs    = "invalid_args"
	CodeInvalidSession = "invalid_session"
)

// request is the inbound envelope: correlation token, operation name, and an
// operation-specific argument object.
type request struct {
	ID   string          `json:"id"`
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

// response is the outbound envelope. Exactly one of Result or Error is set.
type response struct {
	ID     string     `json:"id"`
	Result any        `json:"result,omitempty"`
	Error  *wireError `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// opError is returned by operation handlers to select the wire error code.
type opError struct {
	code string
	msg  string
}

func (e *opError) Error() string { return e.msg }

func errInvalidArgs(msg string) error {
	return &opError{code: CodeInvalidArgs, msg: msg}
}

// maxControlMessage caps inbound control message size.
const maxControlMessage = 1 << 16

// Handler serves the control channel endpoint. All fields must be set
// before first use.
type Handler struct {
	Registry *registry.Registry

	// ChunkMs is the synthesis chunk duration reported as the session's
	// nominal interaction latency by duplex-orchestrate status queries.
	ChunkMs int

	// Metrics defaults to observe.DefaultMetrics when nil.
	Metrics *observe.Metrics
}

// ServeHTTP upgrades the request and dispatches operations until the client
// disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("control channel upgrade failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "control channel closed")
	conn.SetReadLimit(maxControlMessage)

	metrics := h.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	metrics.ActiveChannels.Add(r.Context(), 1)
	defer metrics.ActiveChannels.Add(r.Context(), -1)

	h.run(r.Context(), conn)
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) run(ctx context.Context, conn *websocket.Conn) {
	for {
		// Read raw so a malformed payload is a protocol error (the
		// channel stays open), not a connection error.
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				errors.Is(err, context.Canceled) {
				return
			}
			slog.Debug("control channel read ended", "err", err)
			return
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			h.send(ctx, conn, response{Error: &wireError{
				Code:    CodeParseError,
				Message: "malformed message: " + err.Error(),
			}})
			continue
		}

		result, err := h.dispatch(req.Op, req.Args)
		if err != nil {
			h.send(ctx, conn, response{ID: req.ID, Error: toWireError(err)})
			continue
		}
		h.send(ctx, conn, response{ID: req.ID, Result: result})
	}
}

// dispatch routes one operation to its handler.
func (h *Handler) dispatch(op string, args json.RawMessage) (any, error) {
	switch op {
	case "describe-capabilities":
		return h.describeCapabilities()
	case "allocate-session":
		return h.allocateSession(args)
	case "enable-stt":
		return h.enableSTT(args)
	case "enable-tts":
		return h.enableTTS(args)
	case "barge-in":
		return h.bargeIn(args)
	case "duplex-orchestrate":
		return h.duplexOrchestrate(args)
	case "heartbeat":
		return h.heartbeat(args)
	default:
		return nil, &opError{code: CodeMethodNotFound, msg: "unknown operation: " + op}
	}
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, resp response) {
	if err := wsjson.Write(ctx, conn, resp); err != nil {
		slog.Debug("control channel write failed", "err", err)
	}
}

// toWireError maps handler errors onto wire codes. Registry lookups surface
// as invalid_session; anything unclassified falls back to invalid_args.
func toWireError(err error) *wireError {
	var oe *opError
	if errors.As(err, &oe) {
		return &wireError{Code: oe.code, Message: oe.msg}
	}
	if errors.Is(err, registry.ErrInvalidSession) {
		return &wireError{Code: CodeInvalidSession, Message: err.Error()}
	}
	return &wireError{Code: CodeInvalidArgs, Message: err.Error()}
}
