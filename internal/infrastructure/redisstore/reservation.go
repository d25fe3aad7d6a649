// Package redisstore implements the counter store against Redis: the
// atomic reservation script, the fixed-second admission bucket, and the
// idempotency marker. Reservation and admission are small Lua scripts
// evaluated with client.Eval and a parsed int64 result; the idempotency
// marker uses plain EXISTS and SET commands.
package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const stockKeyPrefix = "product:"

// reserveScript reads the stock key and, if it is at least 1, decrements it
// atomically. It returns 1 on a successful reservation, 0 if sold out. Lua
// scripts run as a single command in Redis, so no other command can
// interleave between the read and the decrement.
const reserveScript = `
local stock = redis.call('GET', KEYS[1])
if not stock then
	return 0
end
if tonumber(stock) < 1 then
	return 0
end
redis.call('DECR', KEYS[1])
return 1
`

// CounterStore wraps the product:{id}:stock key family.
type CounterStore struct {
	client *redis.Client
}

// NewCounterStore creates a counter store backed by an existing client.
func NewCounterStore(client *redis.Client) *CounterStore {
	return &CounterStore{client: client}
}

func stockKey(productID string) string {
	return stockKeyPrefix + productID + ":stock"
}

// Reserve performs the atomic decrement-if-positive script against a
// product's stock key. It returns true iff a unit was reserved.
func (c *CounterStore) Reserve(ctx context.Context, productID string) (bool, error) {
	result, err := c.client.Eval(ctx, reserveScript, []string{stockKey(productID)}).Result()
	if err != nil {
		return false, fmt.Errorf("reserve script failed: %w", err)
	}
	n, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected reserve script result type %T", result)
	}
	return n == 1, nil
}

// SetStock overwrites a product's counter-store stock, used by bootstrap
// (init) and never by the hot path.
func (c *CounterStore) SetStock(ctx context.Context, productID string, quantity int) error {
	if err := c.client.Set(ctx, stockKey(productID), quantity, 0).Err(); err != nil {
		return fmt.Errorf("set stock failed: %w", err)
	}
	return nil
}

// Stock returns the current counter-store value for a product, mainly for
// tests and diagnostics.
func (c *CounterStore) Stock(ctx context.Context, productID string) (int, error) {
	v, err := c.client.Get(ctx, stockKey(productID)).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("get stock failed: %w", err)
	}
	return v, nil
}
