package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// HeaderSize is the size of the canonical PCM WAV header.
const HeaderSize = 44

// WAVHeader is the canonical 44-byte RIFF/WAVE header for 16-bit mono PCM.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + data size
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * BlockAlign
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // 2 * number of samples
}

// EncodeWAV wraps 16-bit mono samples in a WAV container. The result is always
// HeaderSize + 2*len(samples) bytes; an empty sample slice yields a bare header.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	const (
		numChannels   = uint16(1)
		bitsPerSample = uint16(16)
	)
	dataSize := uint32(len(samples) * 2)
	blockAlign := numChannels * bitsPerSample / 8

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if len(samples) > 0 {
		if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
			return nil, fmt.Errorf("failed to write audio data: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// EncodePCMToWAV wraps raw little-endian 16-bit PCM bytes in a WAV container.
func EncodePCMToWAV(pcm []byte, sampleRate int) ([]byte, error) {
	samples, err := SamplesFromPCM(pcm)
	if err != nil {
		return nil, err
	}
	return EncodeWAV(samples, sampleRate)
}

// DecodeWAV reads back 16-bit mono samples and the sample rate.
func DecodeWAV(data []byte) ([]int16, int, error) {
	header, err := readHeader(data)
	if err != nil {
		return nil, 0, err
	}
	if header.AudioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}
	if header.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}
	if header.NumChannels != 1 {
		return nil, 0, fmt.Errorf("unsupported channel count: %d (only mono is supported)", header.NumChannels)
	}
	if int(header.Subchunk2Size) > len(data)-HeaderSize {
		return nil, 0, fmt.Errorf("WAV data truncated: header declares %d bytes, have %d", header.Subchunk2Size, len(data)-HeaderSize)
	}

	samples, err := SamplesFromPCM(data[HeaderSize : HeaderSize+int(header.Subchunk2Size)])
	if err != nil {
		return nil, 0, err
	}
	return samples, int(header.SampleRate), nil
}

// ValidateWAV checks the chunk markers without decoding the samples.
func ValidateWAV(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}
	switch {
	case string(data[0:4]) != "RIFF":
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	case string(data[8:12]) != "WAVE":
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	case string(data[12:16]) != "fmt ":
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	case string(data[36:40]) != "data":
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}
	return nil
}

// WAVInfo is basic metadata about a WAV file.
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// Info extracts metadata from a WAV file.
func Info(data []byte) (*WAVInfo, error) {
	header, err := readHeader(data)
	if err != nil {
		return nil, err
	}
	if header.SampleRate == 0 || header.BitsPerSample < 8 {
		return nil, fmt.Errorf("invalid WAV header: rate=%d bits=%d", header.SampleRate, header.BitsPerSample)
	}
	numSamples := header.Subchunk2Size / (uint32(header.BitsPerSample) / 8) / uint32(max(header.NumChannels, 1))
	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      float64(numSamples) / float64(header.SampleRate),
		DataSize:      header.Subchunk2Size,
		NumSamples:    numSamples,
	}, nil
}

// DownloadFilename turns a story title into the WAV attachment name.
func DownloadFilename(title string) string {
	name := strings.TrimSpace(title)
	if name == "" {
		name = "story"
	}
	return strings.ReplaceAll(name, " ", "_") + ".wav"
}

func readHeader(data []byte) (*WAVHeader, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}
	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}
	return &header, nil
}
