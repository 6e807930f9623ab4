package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	// ToneFrequency is the frequency of the placeholder tone in Hz.
	ToneFrequency = 440.0

	// toneAmplitude keeps the tone comfortably below full scale.
	toneAmplitude = 0.25

	// ToneMinDuration and ToneMaxDuration clamp the placeholder tone length.
	ToneMinDuration = 300 * time.Millisecond
	ToneMaxDuration = 3 * time.Second

	// tonePerRune is the nominal speaking time attributed to one rune of
	// input text when deriving the tone duration.
	tonePerRune = 60 * time.Millisecond
)

// ToneDuration maps input text length to the placeholder tone duration: a
// monotonic function of rune count, clamped to [ToneMinDuration,
// ToneMaxDuration]. Deterministic so tests can assert exact output sizes.
func ToneDuration(text string) time.Duration {
	d := time.Duration(len([]rune(text))) * tonePerRune
	if d < ToneMinDuration {
		return ToneMinDuration
	}
	if d > ToneMaxDuration {
		return ToneMaxDuration
	}
	return d
}

// GenerateTone produces a fixed-frequency PCM16 mono sine tone of duration d
// at the given sample rate. It is the deterministic placeholder used by the
// synthesis pipeline when no real TTS engine is configured; it exists to
// prove the data path, not to sound pleasant.
func GenerateTone(d time.Duration, sampleRate int) []byte {
	samples := int(int64(sampleRate) * d.Nanoseconds() / int64(time.Second))
	out := make([]byte, samples*BytesPerSample)
	step := 2 * math.Pi * ToneFrequency / float64(sampleRate)
	for i := range samples {
		s := int16(toneAmplitude * math.MaxInt16 * math.Sin(step*float64(i)))
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}
