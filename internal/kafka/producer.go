package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/snappy-loop/feeled/internal/models"
)

// messageWriter is the subset of *kafka.Writer used by Producer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes generation events
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
	}

	log.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Msg("Kafka producer initialized")

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishEvent publishes one generation event, keyed by kind so a kind stays on one partition.
func (p *Producer) PublishEvent(ctx context.Context, event *models.GenerationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal generation event: %w", err)
	}

	kafkaMsg := kafka.Message{
		Key:   []byte(event.Kind),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	log.Debug().
		Str("event_id", event.ID.String()).
		Str("kind", event.Kind).
		Str("topic", p.topic).
		Msg("Generation event published to Kafka")

	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	log.Info().Msg("Closing Kafka producer")
	return p.writer.Close()
}
