package audio_test

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/vocalink/pkg/audio"
)

func TestBytesForDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		rate int
		want int
	}{
		{20 * time.Millisecond, 16000, 640},
		{400 * time.Millisecond, 16000, 12800},
		{80 * time.Millisecond, 24000, 3840},
		{10 * time.Second, 16000, 320000},
		{0, 16000, 0},
	}
	for _, tt := range tests {
		if got := audio.BytesForDuration(tt.d, tt.rate); got != tt.want {
			t.Errorf("BytesForDuration(%v, %d) = %d, want %d", tt.d, tt.rate, got, tt.want)
		}
	}
}

func TestDurationRoundTrip(t *testing.T) {
	for _, rate := range []int{16000, 24000} {
		d := 400 * time.Millisecond
		n := audio.BytesForDuration(d, rate)
		if got := audio.Duration(n, rate); got != d {
			t.Errorf("Duration(BytesForDuration(%v, %d)) = %v", d, rate, got)
		}
	}
	if got := audio.Duration(640, 0); got != 0 {
		t.Errorf("Duration with zero rate = %v, want 0", got)
	}
}

func TestRMS(t *testing.T) {
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := audio.RMS(make([]byte, 640)); got != 0 {
		t.Errorf("RMS(silence) = %v, want 0", got)
	}

	// A constant-amplitude buffer has RMS equal to that amplitude.
	buf := make([]byte, 640)
	for i := 0; i < len(buf); i += 2 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(int16(1000)))
	}
	if got := audio.RMS(buf); math.Abs(got-1000) > 0.5 {
		t.Errorf("RMS(constant 1000) = %v, want 1000", got)
	}
}

func TestResampleMono16(t *testing.T) {
	src := make([]byte, 3200) // 100 ms at 16 kHz

	same := audio.ResampleMono16(src, 16000, 16000)
	if len(same) != len(src) {
		t.Errorf("identity resample changed length: %d", len(same))
	}

	up := audio.ResampleMono16(src, 16000, 24000)
	if len(up) != 4800 {
		t.Errorf("upsample 16k→24k length = %d, want 4800", len(up))
	}

	down := audio.ResampleMono16(up, 24000, 16000)
	if len(down) != 3200 {
		t.Errorf("downsample 24k→16k length = %d, want 3200", len(down))
	}
}

func TestResampleInterpolates(t *testing.T) {
	// Two samples 0 and 1000; doubling the rate should place an
	// interpolated midpoint between them.
	src := make([]byte, 4)
	binary.LittleEndian.PutUint16(src[2:], uint16(int16(1000)))

	out := audio.ResampleMono16(src, 8000, 16000)
	if len(out) != 8 {
		t.Fatalf("output length = %d, want 8", len(out))
	}
	mid := int16(binary.LittleEndian.Uint16(out[2:]))
	if mid != 500 {
		t.Errorf("interpolated sample = %d, want 500", mid)
	}
}

func TestEncodeWAV(t *testing.T) {
	pcm := make([]byte, 320)
	wav := audio.EncodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("container length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Errorf("bad RIFF header: %q %q", wav[0:4], wav[8:12])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != 320 {
		t.Errorf("data size = %d, want 320", size)
	}
}

func TestToneDurationClamps(t *testing.T) {
	if d := audio.ToneDuration(""); d != audio.ToneMinDuration {
		t.Errorf("empty text duration = %v, want %v", d, audio.ToneMinDuration)
	}
	if d := audio.ToneDuration(strings.Repeat("a", 500)); d != audio.ToneMaxDuration {
		t.Errorf("long text duration = %v, want %v", d, audio.ToneMaxDuration)
	}

	short := audio.ToneDuration("hello there")
	long := audio.ToneDuration("hello there, how are you today")
	if short >= long {
		t.Errorf("duration not monotonic: %v >= %v", short, long)
	}
}

func TestGenerateTone(t *testing.T) {
	pcm := audio.GenerateTone(time.Second, 16000)
	if len(pcm) != 32000 {
		t.Fatalf("tone length = %d, want 32000", len(pcm))
	}
	// A sine tone has nonzero energy but stays below full scale.
	rms := audio.RMS(pcm)
	if rms < 1000 || rms > 16000 {
		t.Errorf("tone RMS = %v, want a moderate level", rms)
	}
}
