package kafka

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler processes one message value. Returning nil commits the offset.
type Handler func(ctx context.Context, body []byte) error

// Consumer reads a topic as part of a consumer group. Each partition is handled by
// its own goroutine, strictly in offset order.
type Consumer struct {
	r      *kafka.Reader
	commit func(ctx context.Context, msgs ...kafka.Message) error

	retryInitial time.Duration
	retryMax     time.Duration
}

// NewConsumer creates a consumer with manual offset commits.
func NewConsumer(brokers []string, group, topic string) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return &Consumer{
		r:            r,
		commit:       r.CommitMessages,
		retryInitial: 200 * time.Millisecond,
		retryMax:     30 * time.Second,
	}
}

// Start blocks until ctx is done or the reader fails. A message whose handler fails
// is retried in place with backoff; later messages of the same partition wait for it,
// so a committed offset never skips an unhandled message.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	partitions := make(map[int]chan kafka.Message)
	var wg sync.WaitGroup
	defer func() {
		for _, ch := range partitions {
			close(ch)
		}
		wg.Wait()
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		ch, ok := partitions[m.Partition]
		if !ok {
			ch = make(chan kafka.Message, 64)
			partitions[m.Partition] = ch
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.process(ctx, ch, h)
			}()
		}
		select {
		case ch <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// process handles one partition's messages in order and commits each after it succeeds.
func (c *Consumer) process(ctx context.Context, msgs <-chan kafka.Message, h Handler) {
	for m := range msgs {
		if !c.handle(ctx, m, h) {
			return
		}
		if err := c.commit(ctx, m); err != nil {
			log.Printf("Error committing message %s/%d@%d: %v", m.Topic, m.Partition, m.Offset, err)
		}
	}
}

// handle runs h until it succeeds. It returns false when ctx ends first.
func (c *Consumer) handle(ctx context.Context, m kafka.Message, h Handler) bool {
	delay := c.retryInitial
	for {
		err := h(ctx, m.Value)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		log.Printf("Error processing message %s/%d@%d, retrying in %s: %v", m.Topic, m.Partition, m.Offset, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		if delay *= 2; delay > c.retryMax {
			delay = c.retryMax
		}
	}
}
