// Package events publishes optimization outcomes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"price-optimizer/pkg/api"
)

// TopicPriceOptimized is the default topic for optimization events.
const TopicPriceOptimized = "price.optimized"

// PriceOptimized is the event emitted after a successful optimization.
type PriceOptimized struct {
	RunID        string                 `json:"run_id"`
	ModelVersion string                 `json:"model_version"`
	Request      api.PricingRequest     `json:"request"`
	Result       api.OptimizationResult `json:"result"`
	CacheHit     bool                   `json:"cache_hit"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

// messageWriter is satisfied by *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes events to a Kafka topic.
type Publisher struct {
	writer messageWriter
}

// NewKafkaWriter builds a writer for topic on the given brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// NewPublisher creates a publisher for topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = TopicPriceOptimized
	}
	return &Publisher{writer: NewKafkaWriter(brokers, topic)}
}

// PublishPriceOptimized writes one event keyed by category, so a category's
// events stay ordered within a partition.
func (p *Publisher) PublishPriceOptimized(ctx context.Context, event PriceOptimized) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	key := event.Request.Category
	if key == "" {
		key = "uncategorized"
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(TopicPriceOptimized)},
			{Key: "model-version", Value: []byte(event.ModelVersion)},
		},
		Time: event.OccurredAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.RunID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
