package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/flashgate/flashgate/internal/domain/order"
)

// ConsumedRecord is the minimal shape FulfillmentService needs from a
// Kafka record: its raw value plus whatever the infrastructure layer needs
// to commit its offset later (opaque to this package).
type ConsumedRecord struct {
	Value []byte
	Raw   any // the underlying *kgo.Record, passed back to Commit verbatim
}

// Consumer is the durable-log read side.
type Consumer interface {
	Poll(ctx context.Context) ([]ConsumedRecord, error)
	Commit(ctx context.Context, records ...ConsumedRecord) error
}

// DeadLetterProducer routes a record to the dead-letter destination after
// a bounded number of divergence retries.
type DeadLetterProducer interface {
	ProduceDeadLetter(ctx context.Context, topic string, raw []byte, key string) error
}

// ReservationStore is the record-of-truth transactional write path.
type ReservationStore interface {
	ProcessReservation(ctx context.Context, event order.ReservationEvent) (created bool, diverged bool, err error)
}

// FulfillmentService consumes the orders topic and persists each
// reservation exactly once into the record of truth.
type FulfillmentService struct {
	consumer   Consumer
	store      ReservationStore
	deadLetter DeadLetterProducer
	logger     *zap.Logger

	deadLetterTopic      string
	maxDivergenceRetries int

	divergenceAttempts map[string]int
}

// NewFulfillmentService wires the consumer, the durable store, and the
// optional dead-letter producer.
func NewFulfillmentService(
	consumer Consumer,
	store ReservationStore,
	deadLetter DeadLetterProducer,
	logger *zap.Logger,
	deadLetterTopic string,
	maxDivergenceRetries int,
) *FulfillmentService {
	return &FulfillmentService{
		consumer:             consumer,
		store:                store,
		deadLetter:           deadLetter,
		logger:               logger,
		deadLetterTopic:      deadLetterTopic,
		maxDivergenceRetries: maxDivergenceRetries,
		divergenceAttempts:   make(map[string]int),
	}
}

// RunOnce polls one batch and processes every record in order, committing
// offsets as it goes. It is split out from Run so tests can drive exactly
// one poll cycle deterministically.
func (f *FulfillmentService) RunOnce(ctx context.Context) error {
	records, err := f.consumer.Poll(ctx)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	for _, rec := range records {
		f.processRecord(ctx, rec)
	}
	return nil
}

// Run polls forever until ctx is canceled, processing batches as they
// arrive. Within a partition, records are handled strictly in order
// because Poll/processRecord never runs concurrently with itself.
func (f *FulfillmentService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := f.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Error("poll cycle failed", zap.Error(err))
		}
	}
}

func (f *FulfillmentService) processRecord(ctx context.Context, rec ConsumedRecord) {
	var event order.ReservationEvent
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		// Poison message: log and skip, advancing the offset to avoid a
		// retry loop.
		f.logger.Error("poison reservation envelope, skipping", zap.Error(err), zap.ByteString("value", rec.Value))
		f.commit(ctx, rec)
		return
	}

	created, diverged, err := f.store.ProcessReservation(ctx, event)
	if err != nil {
		f.logger.Error("reservation processing failed, will retry on next poll",
			zap.String("reservation_id", event.ReservationID),
			zap.Error(err),
		)
		// Offset intentionally not committed: redelivered next poll.
		return
	}

	if diverged {
		f.handleDivergence(ctx, rec, event)
		return
	}

	if created {
		f.logger.Info("order persisted", zap.String("reservation_id", event.ReservationID), zap.String("product_id", event.ProductID))
	} else {
		f.logger.Info("order already persisted, replay absorbed by primary key", zap.String("reservation_id", event.ReservationID))
	}
	delete(f.divergenceAttempts, event.ReservationID)
	f.commit(ctx, rec)
}

func (f *FulfillmentService) handleDivergence(ctx context.Context, rec ConsumedRecord, event order.ReservationEvent) {
	f.divergenceAttempts[event.ReservationID]++
	attempts := f.divergenceAttempts[event.ReservationID]

	f.logger.Error("counter store and durable store diverged",
		zap.String("reservation_id", event.ReservationID),
		zap.String("product_id", event.ProductID),
		zap.Int("attempt", attempts),
	)

	if f.deadLetter == nil || attempts < f.maxDivergenceRetries {
		// Offset not committed: the message is reprocessed on next poll.
		return
	}

	if err := f.deadLetter.ProduceDeadLetter(ctx, f.deadLetterTopic, rec.Value, event.ProductID); err != nil {
		f.logger.Error("failed to route diverging reservation to dead letter", zap.Error(err))
		return
	}
	delete(f.divergenceAttempts, event.ReservationID)
	f.commit(ctx, rec)
}

func (f *FulfillmentService) commit(ctx context.Context, rec ConsumedRecord) {
	if err := f.consumer.Commit(ctx, rec); err != nil {
		f.logger.Error("offset commit failed", zap.Error(err))
	}
}
