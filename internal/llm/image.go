package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	unifiedgenai "google.golang.org/genai"
)

// Image is a generated illustration.
type Image struct {
	Data     []byte
	MimeType string // from the inline blob, may be empty
	Model    string
}

// GenerateImage asks the image model for a single illustration and returns the first
// inline image part. A response without image data is an error.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*Image, error) {
	if c.unifiedClient == nil {
		return nil, fmt.Errorf("image model not configured")
	}
	log.Debug().
		Str("model", c.modelImage).
		Str("prompt", preview(prompt, 80)).
		Msg("Generating image")

	config := &unifiedgenai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	}
	resp, err := c.unifiedClient.Models.GenerateContent(ctx, c.modelImage, unifiedgenai.Text(prompt), config)
	if err != nil {
		return nil, err
	}

	img := firstInlineImage(resp)
	if img == nil {
		log.Warn().
			Str("model", c.modelImage).
			Int("candidates", len(resp.Candidates)).
			Msg("No image data in Gemini response")
		return nil, fmt.Errorf("no image data in response")
	}
	img.Model = c.modelImage

	log.Info().
		Str("caller", "GenerateImage").
		Int("image_size_bytes", len(img.Data)).
		Str("mime_type", img.MimeType).
		Msg("Gemini response (image blob)")
	return img, nil
}

func firstInlineImage(resp *unifiedgenai.GenerateContentResponse) *Image {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &Image{Data: part.InlineData.Data, MimeType: part.InlineData.MIMEType}
			}
		}
	}
	return nil
}
