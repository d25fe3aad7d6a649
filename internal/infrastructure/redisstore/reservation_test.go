package redisstore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	redisModule "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/flashgate/flashgate/internal/infrastructure/redisstore"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := redisModule.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithOccurrence(1),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

// The atomic script never lets concurrent reservations take the counter
// below zero.
func TestCounterStore_NoOversellUnderConcurrency(t *testing.T) {
	client := newTestRedisClient(t)
	store := redisstore.NewCounterStore(client)
	ctx := context.Background()

	require.NoError(t, store.SetStock(ctx, "widget", 50))

	const attempts = 200
	results := make([]bool, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := store.Reserve(ctx, "widget")
			require.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	granted := 0
	for _, ok := range results {
		if ok {
			granted++
		}
	}
	assert.Equal(t, 50, granted)

	remaining, err := store.Stock(ctx, "widget")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestCounterStore_ReserveFailsWhenUnset(t *testing.T) {
	client := newTestRedisClient(t)
	store := redisstore.NewCounterStore(client)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "never-initialized")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCounterStore_SetStockOverwritesPriorValue(t *testing.T) {
	client := newTestRedisClient(t)
	store := redisstore.NewCounterStore(client)
	ctx := context.Background()

	require.NoError(t, store.SetStock(ctx, "widget", 5))
	require.NoError(t, store.SetStock(ctx, "widget", 2))

	stock, err := store.Stock(ctx, "widget")
	require.NoError(t, err)
	assert.Equal(t, 2, stock)
}

func TestCounterStore_StockExhaustsExactlyOnce(t *testing.T) {
	client := newTestRedisClient(t)
	store := redisstore.NewCounterStore(client)
	ctx := context.Background()

	require.NoError(t, store.SetStock(ctx, "widget", 1))

	first, err := store.Reserve(ctx, "widget")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.Reserve(ctx, "widget")
	require.NoError(t, err)
	assert.False(t, second)
}
