// Package openai provides an STT engine backed by the OpenAI audio
// transcription API. It implements the stt.Engine interface.
//
// The hosted API does not expose token log-probabilities for whisper-1, so
// results carry a single segment with AvgLogProb 0 (confidence 1.0). Use the
// local whisper engine when calibrated confidence matters.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/vocalink/pkg/audio"
	"github.com/MrWong99/vocalink/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = oai.AudioModelWhisper1

// Ensure Engine implements the stt.Engine interface.
var _ stt.Engine = (*Engine)(nil)

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

// Engine implements stt.Engine using the OpenAI audio transcription API.
type Engine struct {
	client oai.Client
	model  string
}

// New constructs a new OpenAI STT Engine. If model is empty, DefaultModel
// (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
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

// Available always reports true: the engine exists only when an API key was
// supplied, and request failures are per-window transients.
func (e *Engine) Available() bool { return true }

// Transcribe encodes the window as WAV and submits it to the transcription
// endpoint.
func (e *Engine) Transcribe(ctx context.Context, w stt.Window) (stt.Result, error) {
	if len(w.PCM) == 0 {
		return stt.Result{}, nil
	}

	wav := audio.EncodeWAV(w.PCM, w.SampleRate, 1)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "window.wav", "audio/wav"),
		Model: e.model,
	}
	if w.Language != "" {
		params.Language = oai.String(w.Language)
	}

	resp, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return stt.Result{}, nil
	}
	return stt.Result{
		Text: text,
		Segments: []stt.Segment{{
			Text: text,
			End:  audio.Duration(len(w.PCM), w.SampleRate),
		}},
	}, nil
}
