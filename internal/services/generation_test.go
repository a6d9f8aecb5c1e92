package services

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/snappy-loop/feeled/internal/catalog"
	"github.com/snappy-loop/feeled/internal/llm"
	"github.com/snappy-loop/feeled/internal/models"
)

type fakeGenerator struct {
	storyFn  func(ctx context.Context, req models.StoryRequest) (*models.Story, error)
	speechFn func(ctx context.Context, text, voice, tone string) (*llm.Speech, error)
	imageFn  func(ctx context.Context, prompt string) (*llm.Image, error)
}

func (f *fakeGenerator) GenerateStory(ctx context.Context, req models.StoryRequest) (*models.Story, error) {
	return f.storyFn(ctx, req)
}

func (f *fakeGenerator) GenerateSpeech(ctx context.Context, text, voice, tone string) (*llm.Speech, error) {
	return f.speechFn(ctx, text, voice, tone)
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, prompt string) (*llm.Image, error) {
	return f.imageFn(ctx, prompt)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.GenerationEvent
	got    chan struct{}
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{got: make(chan struct{}, 16)}
}

func (p *recordingPublisher) PublishEvent(_ context.Context, e *models.GenerationEvent) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	p.got <- struct{}{}
	return nil
}

func (p *recordingPublisher) wait(t *testing.T) *models.GenerationEvent {
	t.Helper()
	select {
	case <-p.got:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func validRequest() models.StoryRequest {
	return models.StoryRequest{Topic: "Gravity", Std: "5th STD", Language: "English", NarratorVoice: "Male", EmotionTone: "Curious"}
}

func completeStory() *models.Story {
	return &models.Story{Title: "T", EmotionTone: "Curious", Introduction: "I", EmotionalTrigger: "E",
		ConceptExplanation: "C", Resolution: "R", MoralMessage: "M", Conclusion: "Z"}
}

func TestGenerateStory(t *testing.T) {
	pub := newRecordingPublisher()
	gen := &fakeGenerator{storyFn: func(_ context.Context, req models.StoryRequest) (*models.Story, error) {
		if req.Topic != "Gravity" {
			t.Errorf("unexpected topic %q", req.Topic)
		}
		return completeStory(), nil
	}}
	svc := NewGenerationService(gen, catalog.Default(), pub, nil)

	story, err := svc.GenerateStory(WithTraceID(context.Background(), "trace-1"), validRequest())
	if err != nil {
		t.Fatalf("GenerateStory failed: %v", err)
	}
	if story.Title != "T" {
		t.Errorf("unexpected story %+v", story)
	}

	event := pub.wait(t)
	if event.Kind != models.EventStoryGenerated || event.TraceID != "trace-1" || event.Std != "5th STD" {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestGenerateStory_ValidationSkipsModel(t *testing.T) {
	gen := &fakeGenerator{storyFn: func(context.Context, models.StoryRequest) (*models.Story, error) {
		t.Fatal("model must not be called for invalid requests")
		return nil, nil
	}}
	svc := NewGenerationService(gen, catalog.Default(), nil, nil)

	req := validRequest()
	req.Topic = ""
	_, err := svc.GenerateStory(context.Background(), req)
	var vErr *catalog.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "topic" {
		t.Fatalf("expected topic ValidationError, got %v", err)
	}
}

func TestGenerateStory_IncompleteStoryRejected(t *testing.T) {
	pub := newRecordingPublisher()
	gen := &fakeGenerator{storyFn: func(context.Context, models.StoryRequest) (*models.Story, error) {
		s := completeStory()
		s.MoralMessage = ""
		return s, nil
	}}
	svc := NewGenerationService(gen, catalog.Default(), pub, nil)

	if _, err := svc.GenerateStory(context.Background(), validRequest()); err == nil {
		t.Fatal("expected error for incomplete story")
	}
	if event := pub.wait(t); event.Kind != models.EventStoryFailed || event.Error == "" {
		t.Errorf("expected failed event with error, got %+v", event)
	}
}

func TestGenerateVoice_VoiceSelection(t *testing.T) {
	tests := []struct {
		language, narrator, want string
	}{
		{"Tamil", "Male", "Fenrir"},
		{"Tamil", "Female", "Zephyr"},
		{"English", "Male", "Puck"},
		{"Hindi", "Female", "Kore"},
	}
	for _, tt := range tests {
		t.Run(tt.language+"/"+tt.narrator, func(t *testing.T) {
			var gotVoice, gotTone string
			gen := &fakeGenerator{speechFn: func(_ context.Context, text, voice, tone string) (*llm.Speech, error) {
				gotVoice, gotTone = voice, tone
				return &llm.Speech{PCM: []byte{1, 0, 2, 0}, MimeType: "audio/L16;codec=pcm;rate=24000"}, nil
			}}
			svc := NewGenerationService(gen, catalog.Default(), nil, nil)

			asset, err := svc.GenerateVoice(context.Background(), models.VoiceRequest{
				FullStoryText: "Once upon a time", Language: tt.language, NarratorVoice: tt.narrator, EmotionTone: "Funny",
			})
			if err != nil {
				t.Fatalf("GenerateVoice failed: %v", err)
			}
			if gotVoice != tt.want {
				t.Errorf("expected voice %q, got %q", tt.want, gotVoice)
			}
			if gotTone != "Funny" {
				t.Errorf("expected tone Funny, got %q", gotTone)
			}
			if asset.Base64Audio != base64.StdEncoding.EncodeToString([]byte{1, 0, 2, 0}) || asset.SampleRate != 24000 {
				t.Errorf("unexpected asset %+v", asset)
			}
		})
	}
}

func TestGenerateVoice_ModelError(t *testing.T) {
	gen := &fakeGenerator{speechFn: func(context.Context, string, string, string) (*llm.Speech, error) {
		return nil, errors.New("quota exceeded")
	}}
	svc := NewGenerationService(gen, catalog.Default(), nil, nil)
	_, err := svc.GenerateVoice(context.Background(), models.VoiceRequest{
		FullStoryText: "x", Language: "English", NarratorVoice: "Male", EmotionTone: "Curious",
	})
	if err == nil || err.Error() != "generate voice: quota exceeded" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestGenerateImage(t *testing.T) {
	gen := &fakeGenerator{imageFn: func(_ context.Context, prompt string) (*llm.Image, error) {
		return &llm.Image{Data: []byte("img")}, nil
	}}
	svc := NewGenerationService(gen, catalog.Default(), nil, nil)

	asset, err := svc.GenerateImage(context.Background(), models.ImageRequest{Prompt: "a tree"})
	if err != nil {
		t.Fatalf("GenerateImage failed: %v", err)
	}
	if asset.MimeType != models.DefaultImageMimeType {
		t.Errorf("expected default mime type, got %q", asset.MimeType)
	}
	if asset.Base64Image != base64.StdEncoding.EncodeToString([]byte("img")) {
		t.Errorf("unexpected image data %q", asset.Base64Image)
	}

	if _, err := svc.GenerateImage(context.Background(), models.ImageRequest{Prompt: " "}); err == nil {
		t.Error("expected validation error for blank prompt")
	}
}
