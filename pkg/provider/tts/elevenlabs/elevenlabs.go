// Package elevenlabs provides an ElevenLabs-backed TTS engine using the
// ElevenLabs streaming WebSocket API. It implements the tts.Engine interface
// by concatenating the provider's internal audio stream into one buffer.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/vocalink/pkg/provider/tts"
)

const (
	defaultBaseURL = "wss://api.elevenlabs.io"
	wsEndpointFmt  = "%s/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s"
	defaultModel   = "eleven_flash_v2_5"
	defaultVoice   = "21m00Tcm4TlvDq8ikWAM" // "Rachel", the ElevenLabs stock default
)

// Compile-time assertion that Engine implements tts.Engine.
var _ tts.Engine = (*Engine)(nil)

// Option is a functional option for configuring the ElevenLabs Engine.
type Option func(*Engine)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(e *Engine) {
		e.model = model
	}
}

// WithDefaultVoice sets the voice ID used when a request carries none.
func WithDefaultVoice(voiceID string) Option {
	return func(e *Engine) {
		e.defaultVoice = voiceID
	}
}

// WithBaseURL replaces the API host ("wss://..." or "ws://..."). Useful in
// tests.
func WithBaseURL(url string) Option {
	return func(e *Engine) {
		e.baseURL = strings.TrimRight(url, "/")
	}
}

// Engine implements tts.Engine backed by the ElevenLabs streaming API.
type Engine struct {
	apiKey       string
	baseURL      string
	model        string
	defaultVoice string
}

// New creates a new ElevenLabs Engine. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	e := &Engine{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		defaultVoice: defaultVoice,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Available always reports true; the engine exists only when an API key was
// supplied.
func (e *Engine) Available() bool { return true }

// ---- WebSocket message types ----

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// boiMessage is the initial "begin of input" handshake payload.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// textMessage is the JSON payload sent for each text fragment.
type textMessage struct {
	Text string `json:"text"`
}

// audioResponse is the JSON message received over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// Synthesize opens a WebSocket to ElevenLabs, sends the full text followed by
// a flush, and concatenates every received audio chunk into a single PCM16
// buffer at the requested sample rate (16000 or 24000; other rates fall back
// to 24000).
func (e *Engine) Synthesize(ctx context.Context, req tts.Request) ([]byte, int, error) {
	voice := req.Voice
	if voice == "" {
		voice = e.defaultVoice
	}
	rate := req.SampleRate
	if rate != 16000 && rate != 24000 {
		rate = 24000
	}

	wsURL := fmt.Sprintf(wsEndpointFmt, e.baseURL, voice, e.model, "pcm_"+strconv.Itoa(rate))
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// ElevenLabs requires a non-empty first text value on the handshake.
	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	if req.Speed > 0 {
		vs.Speed = req.Speed
	}
	boi := boiMessage{Text: " ", VoiceSettings: vs, XiAPIKey: e.apiKey}
	boiBytes, _ := json.Marshal(boi)
	if err := conn.Write(ctx, websocket.MessageText, boiBytes); err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	text := req.Text
	if !strings.HasSuffix(text, " ") {
		text += " "
	}
	msgBytes, _ := json.Marshal(textMessage{Text: text})
	if err := conn.Write(ctx, websocket.MessageText, msgBytes); err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: send text: %w", err)
	}

	// Empty text is the end-of-input flush command.
	flushBytes, _ := json.Marshal(textMessage{Text: ""})
	if err := conn.Write(ctx, websocket.MessageText, flushBytes); err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: send flush: %w", err)
	}

	// Drain audio messages until isFinal or the server closes the stream.
	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, fmt.Errorf("elevenlabs: %w", ctx.Err())
			}
			// Normal close after the final message.
			break
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err == nil {
				pcm = append(pcm, chunk...)
			}
		}
		if resp.IsFinal {
			break
		}
	}

	if len(pcm) == 0 {
		return nil, 0, errors.New("elevenlabs: no audio returned")
	}
	return pcm, rate, nil
}
