package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// PCMSampleRate is the rate of the narration PCM returned by the voice endpoint.
const PCMSampleRate = 24000

// DecodeError reports audio that could not be decoded. Callers treat it as
// "no playable audio" rather than as a failed generation.
type DecodeError struct {
	Op    string
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio decode (%s): %v", e.Op, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Buffer is a mono float playback buffer with samples in [-1, 1).
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Duration of the buffered audio.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}

// DecodeBase64PCM decodes base64 16-bit little-endian mono PCM at PCMSampleRate.
func DecodeBase64PCM(b64 string) (*Buffer, error) {
	raw, err := DecodeBase64(b64)
	if err != nil {
		return nil, err
	}
	return DecodePCM(raw, PCMSampleRate)
}

// DecodeBase64 decodes standard base64, returning a DecodeError on malformed input.
func DecodeBase64(b64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, &DecodeError{Op: "base64", Cause: err}
	}
	return raw, nil
}

// DecodePCM converts raw PCM bytes into a float buffer, each sample divided by 32768.
func DecodePCM(raw []byte, sampleRate int) (*Buffer, error) {
	samples, err := SamplesFromPCM(raw)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return &Buffer{SampleRate: sampleRate, Channels: 1, Samples: out}, nil
}

// SamplesFromPCM reinterprets little-endian bytes as int16 samples.
func SamplesFromPCM(raw []byte) ([]int16, error) {
	if len(raw)%2 != 0 {
		return nil, &DecodeError{Op: "pcm", Cause: fmt.Errorf("odd byte count %d for 16-bit samples", len(raw))}
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples, nil
}

// Params describes the PCM layout announced by an audio MIME type.
type Params struct {
	BitsPerSample int
	Rate          int
}

var bitsPattern = regexp.MustCompile(`audio/L(\d+)`)

// ParseMimeType reads bits per sample and rate from e.g. "audio/L16;codec=pcm;rate=24000".
// Missing values default to 16 bits at PCMSampleRate.
func ParseMimeType(mimeType string) Params {
	params := Params{BitsPerSample: 16, Rate: PCMSampleRate}

	for _, part := range strings.Split(mimeType, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(strings.ToLower(part), "rate=") {
			if rate, err := strconv.Atoi(strings.SplitN(part, "=", 2)[1]); err == nil && rate > 0 {
				params.Rate = rate
			}
		} else if m := bitsPattern.FindStringSubmatch(part); len(m) > 1 {
			if bits, err := strconv.Atoi(m[1]); err == nil {
				params.BitsPerSample = bits
			}
		}
	}
	return params
}
