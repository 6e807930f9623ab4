// Package audio provides PCM16 helpers shared by the ingest and synthesis
// pipelines: duration/byte conversions, energy measurement, linear resampling,
// WAV container encoding, and the deterministic placeholder tone generator.
//
// All functions operate on raw 16-bit signed little-endian mono PCM unless
// documented otherwise.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// BitsPerSample is fixed at 16 for all PCM handled by the streaming core.
const BitsPerSample = 16

// BytesPerSample is the byte width of one PCM16 sample.
const BytesPerSample = BitsPerSample / 8

// BytesForDuration returns the number of PCM16 mono bytes covering d at the
// given sample rate. The result is always an even number of bytes so that it
// never splits a sample.
func BytesForDuration(d time.Duration, sampleRate int) int {
	samples := int(int64(sampleRate) * d.Nanoseconds() / int64(time.Second))
	return samples * BytesPerSample
}

// Duration returns the playback duration of n bytes of PCM16 mono audio at
// the given sample rate. Returns 0 when sampleRate is not positive.
func Duration(n int, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := n / BytesPerSample
	return time.Duration(int64(samples) * int64(time.Second) / int64(sampleRate))
}

// RMS computes the root-mean-square energy of a PCM16 buffer in 16-bit sample
// units (0–32767). An empty or misaligned buffer yields 0.
func RMS(pcm []byte) float64 {
	samples := len(pcm) / BytesPerSample
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(samples))
}

// ResampleMono16 resamples PCM16 mono audio from srcRate to dstRate using
// linear interpolation. If srcRate == dstRate (or either rate is invalid) the
// input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < BytesPerSample {
		return pcm
	}
	srcSamples := len(pcm) / BytesPerSample
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*BytesPerSample)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(binary.LittleEndian.Uint16(pcm[srcIdx*BytesPerSample:]))
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(srcIdx+1)*BytesPerSample:]))
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(interpolated))
	}
	return out
}

// EncodeWAV wraps raw PCM16 data in a standard RIFF/WAV container, suitable
// for upload to batch inference endpoints.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * BytesPerSample
	blockAlign := channels * BytesPerSample
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(BitsPerSample))

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
