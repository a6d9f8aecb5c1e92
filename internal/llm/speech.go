package llm

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	unifiedgenai "google.golang.org/genai"
)

// Speech is raw narration audio as returned by the TTS model.
type Speech struct {
	PCM      []byte
	MimeType string // e.g. "audio/L16;codec=pcm;rate=24000"
	Voice    string
	Model    string
}

// GenerateSpeech narrates text with a prebuilt voice, streaming the inline audio parts
// into one buffer.
func (c *Client) GenerateSpeech(ctx context.Context, text, voice, tone string) (*Speech, error) {
	if c.unifiedClient == nil {
		return nil, fmt.Errorf("TTS model not configured")
	}
	if text == "" {
		return nil, fmt.Errorf("empty narration text")
	}

	contents := []*unifiedgenai.Content{
		{
			Role: "user",
			Parts: []*unifiedgenai.Part{
				unifiedgenai.NewPartFromText(speechPrompt(text, tone)),
			},
		},
	}
	config := &unifiedgenai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &unifiedgenai.SpeechConfig{
			VoiceConfig: &unifiedgenai.VoiceConfig{
				PrebuiltVoiceConfig: &unifiedgenai.PrebuiltVoiceConfig{
					VoiceName: voice,
				},
			},
		},
	}

	log.Debug().
		Str("model", c.modelTTS).
		Str("voice", voice).
		Str("tone", tone).
		Int("text_length", len(text)).
		Msg("Calling unified genai TTS GenerateContentStream")

	var audioBuffer bytes.Buffer
	var mimeType string
	for resp, err := range c.unifiedClient.Models.GenerateContentStream(ctx, c.modelTTS, contents, config) {
		if err != nil {
			return nil, fmt.Errorf("TTS stream error: %w", err)
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		cand := resp.Candidates[0]
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				audioBuffer.Write(part.InlineData.Data)
				if part.InlineData.MIMEType != "" {
					mimeType = part.InlineData.MIMEType
				}
			}
		}
	}

	if audioBuffer.Len() == 0 {
		return nil, fmt.Errorf("TTS returned no audio data")
	}

	log.Info().
		Str("caller", "GenerateSpeech").
		Int("audio_size_bytes", audioBuffer.Len()).
		Str("voice", voice).
		Str("mime_type", mimeType).
		Msg("TTS audio generated")

	return &Speech{PCM: audioBuffer.Bytes(), MimeType: mimeType, Voice: voice, Model: c.modelTTS}, nil
}

func speechPrompt(text, tone string) string {
	return fmt.Sprintf("Say with a %s tone: %s", tone, text)
}
