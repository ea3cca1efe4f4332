package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer writes messages to any topic; the topic is chosen per message.
type Producer struct {
	w *kafka.Writer
}

// NewProducer creates a producer that hashes keys onto partitions so that all
// messages of one key stay in order.
func NewProducer(brokers []string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish writes one message and waits for the brokers to acknowledge it.
func (p *Producer) Publish(ctx context.Context, topic, key string, body []byte) error {
	err := p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish message to %s: %w", topic, err)
	}
	return nil
}

// Close flushes pending writes and releases the writer.
func (p *Producer) Close() error {
	return p.w.Close()
}
