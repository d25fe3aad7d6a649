// Package services holds the two process-level orchestrators: the
// ingestion hot path (IngestionService) and the fulfillment consume loop
// (FulfillmentService). Neither imports net/http or a Kafka/Postgres
// client directly; they depend on small interfaces so their ordering
// discipline can be unit tested without any external store.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flashgate/flashgate/internal/domain/order"
)

// CounterStore is the atomic reservation gate plus the bootstrap seeder
// (administrative only).
type CounterStore interface {
	Reserve(ctx context.Context, productID string) (bool, error)
	SetStock(ctx context.Context, productID string, quantity int) error
}

// IdempotencyStore is the marker keyed by the caller's token.
type IdempotencyStore interface {
	Seen(ctx context.Context, token string) (bool, error)
	Mark(ctx context.Context, token string, ttl time.Duration) error
}

// ReservationProducer is the durable handoff to the reservation log.
type ReservationProducer interface {
	Produce(ctx context.Context, event order.ReservationEvent) error
}

// ProductChecker verifies a durable product row exists before /init seeds
// the counter store, so the two stores cannot silently diverge at
// bootstrap time. Optional: a nil checker skips the guard entirely.
type ProductChecker interface {
	ProductExists(ctx context.Context, productID string) (bool, error)
}

// IDGenerator mints fresh reservation ids. NewIngestionService always
// uses uuid.NewString; no exported option replaces it.
type IDGenerator func() string

// Clock returns the current time. NewIngestionService always uses
// time.Now; no exported option replaces it.
type Clock func() time.Time

// IngestionService implements the two ingestion operations: Init
// (administrative) and Order (the hot path). Admission is handled by gin
// middleware before Order is ever called; this service starts at
// validation.
type IngestionService struct {
	counter    CounterStore
	idem       IdempotencyStore
	producer   ReservationProducer
	productChk ProductChecker
	logger     *zap.Logger

	idempotencyTTL time.Duration
	newID          IDGenerator
	now            Clock
}

// NewIngestionService wires the three required external collaborators.
// Use WithProductChecker to enable the /init durable-row guard.
func NewIngestionService(
	counter CounterStore,
	idem IdempotencyStore,
	producer ReservationProducer,
	logger *zap.Logger,
	idempotencyTTL time.Duration,
) *IngestionService {
	return &IngestionService{
		counter:        counter,
		idem:           idem,
		producer:       producer,
		logger:         logger,
		idempotencyTTL: idempotencyTTL,
		newID:          newReservationID,
		now:            time.Now,
	}
}

// WithProductChecker enables the /init guard that rejects seeding the
// counter store for a product with no durable row yet.
func (s *IngestionService) WithProductChecker(checker ProductChecker) *IngestionService {
	s.productChk = checker
	return s
}

// Init sets a product's counter-store stock, overwriting any prior value.
// It is idempotent with respect to retry and never touches the durable
// store itself; it only optionally verifies the durable row already
// exists.
func (s *IngestionService) Init(ctx context.Context, productID string, quantity int) error {
	if s.productChk != nil {
		exists, err := s.productChk.ProductExists(ctx, productID)
		if err != nil {
			return fmt.Errorf("check product exists: %w", err)
		}
		if !exists {
			return order.ErrUnknownProduct
		}
	}
	if err := s.counter.SetStock(ctx, productID, quantity); err != nil {
		return fmt.Errorf("init product %s: %w", productID, err)
	}
	return nil
}

// Order runs the hot path in a fixed order: validate, check idempotency,
// reserve, hand off to the log, mark idempotency, reply. Do not reorder
// the log handoff and the idempotency mark — marking before the durable
// write would let a crash between them silently drop an order on client
// retry.
func (s *IngestionService) Order(ctx context.Context, productID, userID, idempotencyToken string) error {
	if err := order.ValidateRequest(productID, userID, idempotencyToken); err != nil {
		return err
	}

	seen, err := s.idem.Seen(ctx, idempotencyToken)
	if err != nil {
		return fmt.Errorf("idempotency lookup: %w", err)
	}
	if seen {
		return order.ErrDuplicate
	}

	reserved, err := s.counter.Reserve(ctx, productID)
	if err != nil {
		return fmt.Errorf("reserve: %w", err)
	}
	if !reserved {
		return order.ErrSoldOut
	}

	event := order.ReservationEvent{
		ReservationID: s.newID(),
		ProductID:     productID,
		UserID:        userID,
		TimestampMS:   s.now().UnixMilli(),
	}

	if err := s.producer.Produce(ctx, event); err != nil {
		// Partial-failure window: the decrement already happened and is
		// deliberately not compensated, to avoid reintroducing a race with
		// concurrent successful reservations. Surfaced here for manual
		// reconciliation.
		s.logger.Error("reservation reserved but not logged",
			zap.String("product_id", productID),
			zap.String("user_id", userID),
			zap.String("reservation_id", event.ReservationID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", order.ErrReservedNotLogged, err)
	}

	if err := s.idem.Mark(ctx, idempotencyToken, s.idempotencyTTL); err != nil {
		return fmt.Errorf("idempotency mark: %w", err)
	}

	return nil
}

func newReservationID() string {
	return uuid.NewString()
}
