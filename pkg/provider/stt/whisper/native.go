// This file contains the NativeEngine implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/vocalink/pkg/provider/stt"
)

// Compile-time assertion that NativeEngine satisfies stt.Engine.
var _ stt.Engine = (*NativeEngine)(nil)

// NativeEngine implements stt.Engine using whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely. The model is loaded once at startup and
// shared across all windows; each Transcribe call creates its own whisper
// context because contexts are not safe for concurrent use.
type NativeEngine struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a NativeEngine.
type NativeOption func(*NativeEngine)

// WithNativeLanguage sets the BCP-47 language code used when a window carries
// no hint of its own. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(e *NativeEngine) { e.language = lang }
}

// NewNative creates a NativeEngine that loads the whisper.cpp model from the
// given file path. The caller must call Close when the engine is no longer
// needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeEngine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &NativeEngine{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Close releases the whisper model.
func (e *NativeEngine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Available reports true once the model has loaded.
func (e *NativeEngine) Available() bool { return e.model != nil }

// Transcribe converts the window to float32 samples, runs whisper.cpp
// inference in a fresh context, and collects the recognised segments.
func (e *NativeEngine) Transcribe(ctx context.Context, w stt.Window) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: %w", err)
	}
	if len(w.PCM) == 0 {
		return stt.Result{}, nil
	}

	samples := pcmToFloat32(w.PCM)

	wctx, err := e.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := w.Language
	if lang == "" {
		lang = e.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		res   stt.Result
		parts []string
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		res.Segments = append(res.Segments, stt.Segment{
			Text:       text,
			Start:      time.Duration(segment.Start),
			End:        time.Duration(segment.End),
			AvgLogProb: avgTokenLogProb(segment),
		})
	}
	res.Text = strings.Join(parts, " ")
	return res, nil
}

// avgTokenLogProb averages the per-token probabilities of a segment in log
// space. Segments without token data report 0 (confidence 1.0).
func avgTokenLogProb(segment whisperlib.Segment) float64 {
	if len(segment.Tokens) == 0 {
		return 0
	}
	var sum float64
	for _, tok := range segment.Tokens {
		p := float64(tok.P)
		if p <= 0 {
			p = 1e-10
		}
		sum += math.Log(p)
	}
	return sum / float64(len(segment.Tokens))
}

// pcmToFloat32 converts 16-bit little-endian mono PCM to normalised float32
// samples in [-1, 1), the input format whisper.cpp expects.
func pcmToFloat32(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}
