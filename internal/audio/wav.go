// Package audio turns WAV files and raw PCM16 into the mono float samples the
// engine expects.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/obiente/translate/whisperbridge/internal/whisper"
)

var (
	ErrInvalidWAV = errors.New("audio: invalid wav file")
	ErrEmpty      = errors.New("audio: no samples")
)

// pcm16Scale maps int16 to [-1, 1]; -32768 is clamped to -1.
const pcm16Scale = 32767.0

// DecodeWAVToFloat32 decodes a WAV blob into mono float32 samples in [-1, 1]
// and returns its sample rate. Multi-channel audio is averaged down to mono.
func DecodeWAVToFloat32(b []byte) ([]float32, int, error) {
	return decodeWAV(bytes.NewReader(b))
}

// DecodeWAVFile is DecodeWAVToFloat32 on a file.
func DecodeWAVFile(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return decodeWAV(f)
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("audio: decode wav: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, ErrEmpty
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	channels := int(dec.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}

	sr := int(dec.SampleRate)
	if sr == 0 && buf.Format != nil {
		sr = buf.Format.SampleRate
	}
	if sr == 0 {
		sr = whisper.SampleRate
	}
	return Downmix(intsToFloat(buf, bitDepth), channels), sr, nil
}

func intsToFloat(buf *goaudio.IntBuffer, bitDepth int) []float32 {
	scale := float32(int(1)<<(bitDepth-1) - 1)
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = clamp(float32(v) / scale)
	}
	return out
}

// Downmix averages interleaved frames of the given channel count into mono.
// Trailing partial frames are dropped.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// DecodePCM16LEToFloat32 converts little-endian PCM16 bytes into float32
// samples and returns the given sample rate, defaulting to 16 kHz.
func DecodePCM16LEToFloat32(b []byte, sampleRate int) ([]float32, int, error) {
	if sampleRate <= 0 {
		sampleRate = whisper.SampleRate
	}
	if len(b)%2 != 0 {
		return nil, 0, errors.New("audio: pcm16 length must be even")
	}
	s := make([]int16, len(b)/2)
	for i := range s {
		s[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return PCM16ToFloat32(s), sampleRate, nil
}

// PCM16ToFloat32 scales int16 samples by 1/32767 and clamps to [-1, 1].
func PCM16ToFloat32(s []int16) []float32 {
	out := make([]float32, len(s))
	for i, v := range s {
		out[i] = clamp(float32(v) / pcm16Scale)
	}
	return out
}

func clamp(v float32) float32 {
	return max(-1, min(1, v))
}

// ResampleLinear resamples PCM32F from inRate to outRate using linear interpolation.
func ResampleLinear(samples []float32, inRate, outRate int) []float32 {
	if inRate <= 0 || outRate <= 0 || inRate == outRate || len(samples) == 0 {
		return append([]float32(nil), samples...)
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := max(int(int64(len(samples))*int64(outRate)/int64(inRate)), 1)
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		i0 := int(srcPos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(srcPos - float64(i0))
		s0 := samples[i0]
		s1 := samples[i0+1]
		out[i] = s0 + (s1-s0)*frac
	}
	return out
}

// ForEngine resamples samples at rate to whisper.SampleRate.
func ForEngine(samples []float32, rate int) []float32 {
	return ResampleLinear(samples, rate, whisper.SampleRate)
}
