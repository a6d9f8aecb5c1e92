package services

import (
	"context"

	"github.com/snappy-loop/feeled/internal/llm"
	"github.com/snappy-loop/feeled/internal/models"
)

// EventPublisher publishes generation events (e.g. to Kafka). May be nil to skip publishing.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *models.GenerationEvent) error
}

// generator is the subset of llm.Client used by GenerationService.
type generator interface {
	GenerateStory(ctx context.Context, req models.StoryRequest) (*models.Story, error)
	GenerateSpeech(ctx context.Context, text, voice, tone string) (*llm.Speech, error)
	GenerateImage(ctx context.Context, prompt string) (*llm.Image, error)
}

type traceIDKey struct{}

// WithTraceID attaches a request trace id that is copied onto published events.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceID returns the trace id stored by WithTraceID, or "".
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}
