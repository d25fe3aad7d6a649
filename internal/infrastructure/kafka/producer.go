// Package kafka wraps github.com/twmb/franz-go/pkg/kgo for the durable
// reservation log: a synchronous, ack-waiting producer on the ingestion
// side and a consumer-group poll loop on the worker side.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/flashgate/flashgate/internal/domain/order"
)

// Producer publishes reservation events to the orders topic, keyed by
// productId so a single worker partition sees per-product order.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer dials the given seed brokers and returns a Producer bound to
// topic.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("kafka producer client: %w", err)
	}
	return &Producer{client: client, topic: topic}, nil
}

// Close releases the underlying client.
func (p *Producer) Close() {
	p.client.Close()
}

// Produce sends a single reservation envelope and waits for broker
// acknowledgment before returning.
func (p *Producer) Produce(ctx context.Context, event order.ReservationEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal reservation envelope: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.ProductID),
		Value: value,
	}
	result := p.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("produce reservation envelope: %w", err)
	}
	return nil
}

// ProduceDeadLetter routes a poison or persistently-diverging envelope to
// the dead-letter topic.
func (p *Producer) ProduceDeadLetter(ctx context.Context, topic string, raw []byte, key string) error {
	record := &kgo.Record{Topic: topic, Key: []byte(key), Value: raw}
	result := p.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("produce dead letter: %w", err)
	}
	return nil
}
