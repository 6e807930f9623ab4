// Package whisper provides a local whisper.cpp-backed STT engine.
//
// It connects to a running whisper-server binary (which exposes a REST API at
// POST /inference) and submits each analysis window as a batch inference
// request. Windows are encoded as WAV in memory; no temporary files are
// written.
//
// The server is asked for verbose JSON so that per-segment average
// log-probabilities are available for the confidence estimate the ingest
// pipeline derives.
//
// Usage:
//
//	e, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	)
//	res, err := e.Transcribe(ctx, stt.Window{PCM: pcm, SampleRate: 16000})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/vocalink/pkg/audio"
	"github.com/MrWong99/vocalink/pkg/provider/stt"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
)

// Compile-time assertion that Engine implements stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(e *Engine) {
		e.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// when the window itself carries no language hint. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) {
		e.language = lang
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
// Useful in tests and for custom timeout policies.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.httpClient = c
	}
}

// Engine implements stt.Engine backed by a local whisper.cpp HTTP server.
// Safe for concurrent use; each Transcribe issues an independent request.
type Engine struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates an Engine that connects to the whisper.cpp server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Engine, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	e := &Engine{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Available always reports true: the engine is constructed only when a server
// URL is configured, and transient connectivity failures are surfaced per
// window rather than flipping global availability.
func (e *Engine) Available() bool { return true }

// inferenceResponse mirrors the verbose JSON body returned by whisper-server.
type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text       string  `json:"text"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		AvgLogProb float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// Transcribe encodes w.PCM as WAV and POSTs it to the whisper.cpp /inference
// endpoint as multipart/form-data, returning the recognised text with
// per-segment log-probabilities.
func (e *Engine) Transcribe(ctx context.Context, w stt.Window) (stt.Result, error) {
	if len(w.PCM) == 0 {
		return stt.Result{}, nil
	}

	wav := audio.EncodeWAV(w.PCM, w.SampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "window.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	lang := w.Language
	if lang == "" {
		lang = e.language
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        lang,
		"model":           e.model,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := mw.WriteField(name, value); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write %s field: %w", name, err)
		}
	}

	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+"/inference", &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	res := stt.Result{Text: strings.TrimSpace(parsed.Text)}
	for _, seg := range parsed.Segments {
		res.Segments = append(res.Segments, stt.Segment{
			Text:       strings.TrimSpace(seg.Text),
			Start:      time.Duration(seg.Start * float64(time.Second)),
			End:        time.Duration(seg.End * float64(time.Second)),
			AvgLogProb: seg.AvgLogProb,
		})
	}
	return res, nil
}
