// Package openai provides a TTS engine backed by the OpenAI speech API.
// It implements the tts.Engine interface.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/vocalink/pkg/provider/tts"
)

// DefaultModel is the default OpenAI speech model.
const DefaultModel = oai.SpeechModelTTS1

// DefaultVoice is used when a request carries no voice.
const DefaultVoice = "alloy"

// nativeSampleRate is the rate of the API's raw PCM output.
const nativeSampleRate = 24000

// Ensure Engine implements the tts.Engine interface.
var _ tts.Engine = (*Engine)(nil)

// config holds optional configuration for the engine.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Engine.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Engine implements tts.Engine using the OpenAI speech API. The API emits raw
// PCM16 at 24 kHz; callers needing another rate resample.
type Engine struct {
	client oai.Client
	model  string
}

// New constructs a new OpenAI TTS Engine. If model is empty, DefaultModel
// (tts-1) is used.
func New(apiKey string, model string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Engine{
		client: oai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

// Available always reports true; request failures are per-call transients.
func (e *Engine) Available() bool { return true }

// Synthesize requests raw PCM output and reads the complete response body.
// The returned sample rate is always 24000 regardless of req.SampleRate.
func (e *Engine) Synthesize(ctx context.Context, req tts.Request) ([]byte, int, error) {
	voice := req.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	params := oai.AudioSpeechNewParams{
		Model:          e.model,
		Input:          req.Text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if req.Speed > 0 {
		params.Speed = oai.Float(req.Speed)
	}

	resp, err := e.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, 0, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("openai tts: read audio: %w", err)
	}
	return pcm, nativeSampleRate, nil
}
