package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/snappy-loop/feeled/internal/models"
)

// messageReader is the subset of *kafka.Reader used by Consumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer wraps a Kafka consumer
type Consumer struct {
	reader  messageReader
	handler EventHandler
}

// EventHandler processes generation events
type EventHandler interface {
	HandleEvent(ctx context.Context, event *models.GenerationEvent) error
}

// errMalformed marks a message that can never be processed; it is committed without retry.
var errMalformed = errors.New("malformed message")

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string, handler EventHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,    // Disable auto-commit, using manual commits
		StartOffset:    kafka.FirstOffset,
	})

	log.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Str("group_id", groupID).
		Msg("Kafka consumer initialized")

	return &Consumer{
		reader:  reader,
		handler: handler,
	}
}

// Start consumes until ctx is cancelled. Handler failures are retried with exponential
// backoff; after maxAttempts the message is committed and skipped.
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().Msg("Starting Kafka consumer")

	const (
		maxAttempts = 8
		baseDelay   = 500 * time.Millisecond
		maxDelay    = 30 * time.Second
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Consumer context cancelled, stopping")
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Failed to fetch message")
			continue
		}

		var lastErr error
		for attempt := 0; attempt < maxAttempts; attempt++ {
			lastErr = c.processMessage(ctx, msg)
			if lastErr == nil || errors.Is(lastErr, errMalformed) {
				break
			}
			log.Error().
				Err(lastErr).
				Str("topic", msg.Topic).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Int("attempt", attempt+1).
				Msg("Failed to process message - will retry")

			delay := min(baseDelay*time.Duration(1<<uint(attempt)), maxDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if lastErr != nil {
			log.Error().
				Err(lastErr).
				Str("topic", msg.Topic).
				Int64("offset", msg.Offset).
				Msg("Skipping message")
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Error().Err(err).Msg("Failed to commit message")
		}
	}
}

// processMessage processes a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.GenerationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if event.Kind == "" {
		return fmt.Errorf("%w: event without kind", errMalformed)
	}

	if err := c.handler.HandleEvent(ctx, &event); err != nil {
		return fmt.Errorf("handler error: %w", err)
	}

	log.Debug().
		Str("event_id", event.ID.String()).
		Str("kind", event.Kind).
		Int64("offset", msg.Offset).
		Msg("Message processed successfully")

	return nil
}

// Close closes the consumer
func (c *Consumer) Close() error {
	log.Info().Msg("Closing Kafka consumer")
	return c.reader.Close()
}
