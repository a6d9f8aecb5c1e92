package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/feeled/internal/audio"
	"github.com/snappy-loop/feeled/internal/catalog"
	"github.com/snappy-loop/feeled/internal/metrics"
	"github.com/snappy-loop/feeled/internal/models"
)

const publishTimeout = 5 * time.Second

// GenerationService validates requests, calls the model and reports each call.
// Its three methods have the same shape as the remote clients, so it can back a
// session in-process.
type GenerationService struct {
	model     generator
	catalog   *catalog.Catalog
	publisher EventPublisher
	metrics   *metrics.Metrics
}

// NewGenerationService creates a new GenerationService. publisher and m may be nil.
func NewGenerationService(model generator, cat *catalog.Catalog, publisher EventPublisher, m *metrics.Metrics) *GenerationService {
	return &GenerationService{
		model:     model,
		catalog:   cat,
		publisher: publisher,
		metrics:   m,
	}
}

// Catalog returns the option catalog the service validates against.
func (s *GenerationService) Catalog() *catalog.Catalog {
	return s.catalog
}

// GenerateStory produces a complete story or an error; never a partial story.
func (s *GenerationService) GenerateStory(ctx context.Context, req models.StoryRequest) (*models.Story, error) {
	if err := s.catalog.Validate(req); err != nil {
		return nil, err
	}

	start := time.Now()
	story, err := s.model.GenerateStory(ctx, req)
	if err == nil {
		err = story.Validate()
	}
	s.report(ctx, "story", start, err, func(e *models.GenerationEvent) {
		e.Language, e.Std, e.EmotionTone = req.Language, req.Std, req.EmotionTone
	})
	if err != nil {
		log.Error().Err(err).Str("language", req.Language).Str("std", req.Std).Msg("Story generation failed")
		return nil, fmt.Errorf("generate story: %w", err)
	}
	return story, nil
}

// GenerateVoice narrates the story text with the voice chosen by language and narrator.
func (s *GenerationService) GenerateVoice(ctx context.Context, req models.VoiceRequest) (*models.AudioAsset, error) {
	if err := s.catalog.ValidateVoice(req); err != nil {
		return nil, err
	}
	voice := s.catalog.VoiceName(req.Language, req.NarratorVoice)

	start := time.Now()
	speech, err := s.model.GenerateSpeech(ctx, req.FullStoryText, voice, req.EmotionTone)
	s.report(ctx, "voice", start, err, func(e *models.GenerationEvent) {
		e.Language, e.EmotionTone, e.Voice = req.Language, req.EmotionTone, voice
	})
	if err != nil {
		log.Error().Err(err).Str("voice", voice).Msg("Voice generation failed")
		return nil, fmt.Errorf("generate voice: %w", err)
	}

	params := audio.ParseMimeType(speech.MimeType)
	if params.BitsPerSample != 16 || params.Rate != audio.PCMSampleRate {
		log.Warn().
			Str("mime_type", speech.MimeType).
			Int("bits", params.BitsPerSample).
			Int("rate", params.Rate).
			Msg("Unexpected TTS audio format")
	}

	return &models.AudioAsset{
		Base64Audio: base64.StdEncoding.EncodeToString(speech.PCM),
		SampleRate:  params.Rate,
	}, nil
}

// GenerateImage illustrates a prompt.
func (s *GenerationService) GenerateImage(ctx context.Context, req models.ImageRequest) (*models.ImageAsset, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &catalog.ValidationError{Field: "prompt", Message: "must not be empty"}
	}

	start := time.Now()
	img, err := s.model.GenerateImage(ctx, req.Prompt)
	s.report(ctx, "image", start, err, nil)
	if err != nil {
		log.Error().Err(err).Msg("Image generation failed")
		return nil, fmt.Errorf("generate image: %w", err)
	}

	mime := img.MimeType
	if mime == "" {
		mime = models.DefaultImageMimeType
	}
	return &models.ImageAsset{
		Base64Image: base64.StdEncoding.EncodeToString(img.Data),
		MimeType:    mime,
	}, nil
}

// report records metrics and publishes a generation event without delaying the caller.
func (s *GenerationService) report(ctx context.Context, operation string, start time.Time, err error, fill func(*models.GenerationEvent)) {
	elapsed := time.Since(start)
	s.metrics.ObserveGeneration(operation, err, elapsed)

	if s.publisher == nil {
		return
	}
	kind := operation + ".generated"
	if err != nil {
		kind = operation + ".failed"
	}
	event := models.NewGenerationEvent(kind, elapsed)
	event.TraceID = TraceID(ctx)
	if err != nil {
		event.Error = err.Error()
	}
	if fill != nil {
		fill(event)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	go func() {
		defer cancel()
		if err := s.publisher.PublishEvent(pubCtx, event); err != nil {
			log.Error().Err(err).Str("kind", kind).Msg("Failed to publish generation event")
		}
	}()
}
