package control

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrWong99/vocalink/internal/bargein"
	"github.com/MrWong99/vocalink/internal/registry"
)

// Endpoint handles are derived deterministically from the session id so
// clients can open the data channels without further discovery.
func ingestEndpoint(id string) string    { return "/v1/sessions/" + id + "/ingest" }
func synthesisEndpoint(id string) string { return "/v1/sessions/" + id + "/synthesis" }

// decodeArgs unmarshals args into v, tolerating an absent argument object.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return errInvalidArgs("invalid arguments: " + err.Error())
	}
	return nil
}

// capability describes one supported operation for discovery.
type capability struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Args        map[string]string `json:"args"`
}

// capabilities is the static operation catalogue returned by
// describe-capabilities. Metadata only; dispatch is the source of truth.
var capabilities = []capability{
	{
		Name:        "describe-capabilities",
		Description: "List supported operations and their argument schemas.",
		Args:        map[string]string{},
	},
	{
		Name:        "allocate-session",
		Description: "Allocate an audio session and return its data-channel endpoints.",
		Args: map[string]string{
			"sample_rate":       "int, capture rate in Hz (default 16000)",
			"frame_ms":          "int, capture frame duration (default 20)",
			"channel_count":     "int, must be 1 (default 1)",
			"noise_suppression": "bool (default false)",
			"agc":               "bool, auto gain control (default false)",
		},
	},
	{
		Name:        "enable-stt",
		Description: "Enable transcription for a session.",
		Args: map[string]string{
			"session_id": "string, required",
			"language":   "string, optional recognition hint",
			"vad":        "bool, optional voice-activity gate toggle (default true)",
			"keywords":   "[]string, optional correction hints for final transcripts",
		},
	},
	{
		Name:        "enable-tts",
		Description: "Enable synthesis for a session.",
		Args: map[string]string{
			"session_id":  "string, required",
			"voice":       "string, optional voice name",
			"sample_rate": "int, optional target output rate in Hz",
			"speed":       "float, optional hint, may be ignored by the engine",
			"pitch":       "float, optional hint, may be ignored by the engine",
			"style":       "string, optional hint, may be ignored by the engine",
		},
	},
	{
		Name:        "barge-in",
		Description: "Pause, cancel, or resume a session's synthesis stream.",
		Args: map[string]string{
			"session_id": "string, required",
			"action":     "string, one of pause|cancel|resume",
		},
	},
	{
		Name:        "duplex-orchestrate",
		Description: "Start, stop, or query a duplex session.",
		Args: map[string]string{
			"session_id": "string, required for stop and status",
			"method":     "string, one of start|stop|status",
		},
	},
	{
		Name:        "heartbeat",
		Description: "Liveness echo.",
		Args:        map[string]string{},
	},
}

func (h *Handler) describeCapabilities() (any, error) {
	return map[string]any{"operations": capabilities}, nil
}

type allocateArgs struct {
	SampleRate       int  `json:"sample_rate"`
	FrameMs          int  `json:"frame_ms"`
	ChannelCount     int  `json:"channel_count"`
	NoiseSuppression bool `json:"noise_suppression"`
	AGC              bool `json:"agc"`
}

func (h *Handler) allocateSession(args json.RawMessage) (any, error) {
	var a allocateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	sess, err := h.Registry.Allocate(registry.CaptureConfig{
		SampleRate:       a.SampleRate,
		FrameMs:          a.FrameMs,
		Channels:         a.ChannelCount,
		NoiseSuppression: a.NoiseSuppression,
		AutoGainControl:  a.AGC,
	})
	if err != nil {
		return nil, errInvalidArgs(err.Error())
	}
	return map[string]any{
		"session_id":         sess.ID,
		"ingest_endpoint":    ingestEndpoint(sess.ID),
		"synthesis_endpoint": synthesisEndpoint(sess.ID),
	}, nil
}

type enableSTTArgs struct {
	SessionID string   `json:"session_id"`
	Language  string   `json:"language"`
	VAD       *bool    `json:"vad"`
	Keywords  []string `json:"keywords"`
}

func (h *Handler) enableSTT(args json.RawMessage) (any, error) {
	var a enableSTTArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	sess, err := h.Registry.Get(a.SessionID)
	if err != nil {
		return nil, err
	}
	sess.EnableSTT(a.Language, a.Keywords)
	if a.VAD != nil {
		sess.SetVAD(*a.VAD)
	}
	return map[string]any{"ingest_endpoint": ingestEndpoint(sess.ID)}, nil
}

type enableTTSArgs struct {
	SessionID  string  `json:"session_id"`
	Voice      string  `json:"voice"`
	SampleRate int     `json:"sample_rate"`
	Speed      float64 `json:"speed"`
	Pitch      float64 `json:"pitch"`
	Style      string  `json:"style"`
}

func (h *Handler) enableTTS(args json.RawMessage) (any, error) {
	var a enableTTSArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	sess, err := h.Registry.Get(a.SessionID)
	if err != nil {
		return nil, err
	}
	// Style, speed, and pitch are accepted for forward compatibility; the
	// configured engine may ignore them.
	sess.EnableTTS(a.Voice, a.SampleRate)
	return map[string]any{"synthesis_endpoint": synthesisEndpoint(sess.ID)}, nil
}

type bargeInArgs struct {
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
}

func (h *Handler) bargeIn(args json.RawMessage) (any, error) {
	var a bargeInArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	action := bargein.Action(a.Action)
	if !action.Valid() {
		return nil, errInvalidArgs(fmt.Sprintf("unknown barge-in action %q", a.Action))
	}
	sess, err := h.Registry.Get(a.SessionID)
	if err != nil {
		return nil, err
	}
	sess.Touch()
	state := sess.Barge.Apply(action)
	return map[string]any{"state": string(state)}, nil
}

type duplexArgs struct {
	SessionID string `json:"session_id"`
	Method    string `json:"method"`
}

func (h *Handler) duplexOrchestrate(args json.RawMessage) (any, error) {
	var a duplexArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	switch a.Method {
	case "start":
		sess, created, err := h.Registry.Ensure(a.SessionID, registry.CaptureConfig{})
		if err != nil {
			return nil, errInvalidArgs(err.Error())
		}
		sess.Touch()
		return map[string]any{
			"state":              "idle",
			"created":            created,
			"session_id":         sess.ID,
			"ingest_endpoint":    ingestEndpoint(sess.ID),
			"synthesis_endpoint": synthesisEndpoint(sess.ID),
		}, nil
	case "stop":
		h.Registry.Destroy(a.SessionID)
		return map[string]any{"stopped": true}, nil
	case "status":
		sess, err := h.Registry.Get(a.SessionID)
		if err != nil {
			return map[string]any{"state": "absent"}, nil
		}
		sess.Touch()
		state := "listening"
		if sess.Speaking() {
			state = "speaking"
		}
		return map[string]any{"state": state, "latency_ms": h.ChunkMs}, nil
	default:
		return nil, errInvalidArgs(fmt.Sprintf("unknown duplex method %q", a.Method))
	}
}

func (h *Handler) heartbeat(json.RawMessage) (any, error) {
	return map[string]any{"alive": true, "ts": time.Now().UnixMilli()}, nil
}
