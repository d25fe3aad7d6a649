package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "idempotency:"

// IdempotencyStore wraps the idempotency:{token} key family.
type IdempotencyStore struct {
	client *redis.Client
}

// NewIdempotencyStore creates a store backed by an existing client.
func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// Seen reports whether a marker already exists for token.
func (s *IdempotencyStore) Seen(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, idempotencyKeyPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	return n > 0, nil
}

// Mark sets the idempotency marker with the given TTL.
func (s *IdempotencyStore) Mark(ctx context.Context, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, idempotencyKeyPrefix+token, "1", ttl).Err(); err != nil {
		return fmt.Errorf("idempotency mark failed: %w", err)
	}
	return nil
}
