package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/flashgate/flashgate/internal/services"
)

// Consumer polls the orders topic as a member of a single consumer group,
// with auto-commit disabled so the fulfillment worker can commit offsets
// only after its database transaction has committed. It implements
// services.Consumer.
type Consumer struct {
	client *kgo.Client
}

// NewConsumer joins group and subscribes to topic.
func NewConsumer(brokers []string, topic, group string) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup(group),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer client: %w", err)
	}
	return &Consumer{client: client}, nil
}

// Close releases the underlying client.
func (c *Consumer) Close() {
	c.client.Close()
}

// Poll blocks until at least one record is fetched or ctx is done, and
// returns the batch in per-partition order.
func (c *Consumer) Poll(ctx context.Context) ([]services.ConsumedRecord, error) {
	fetches := c.client.PollFetches(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, fetchErr := range fetches.Errors() {
		if fetchErr.Err != nil {
			return nil, fmt.Errorf("fetch error on %s[%d]: %w", fetchErr.Topic, fetchErr.Partition, fetchErr.Err)
		}
	}
	raw := fetches.Records()
	out := make([]services.ConsumedRecord, len(raw))
	for i, r := range raw {
		out[i] = services.ConsumedRecord{Value: r.Value, Raw: r}
	}
	return out, nil
}

// Commit commits the offsets for the given records, advancing past them
// for this consumer group.
func (c *Consumer) Commit(ctx context.Context, records ...services.ConsumedRecord) error {
	if len(records) == 0 {
		return nil
	}
	raw := make([]*kgo.Record, 0, len(records))
	for _, r := range records {
		rec, ok := r.Raw.(*kgo.Record)
		if !ok {
			return fmt.Errorf("commit: record carries unexpected raw type %T", r.Raw)
		}
		raw = append(raw, rec)
	}
	if err := c.client.CommitRecords(ctx, raw...); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}
	return nil
}
