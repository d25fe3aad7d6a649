package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaModule "github.com/testcontainers/testcontainers-go/modules/kafka"
	postgresModule "github.com/testcontainers/testcontainers-go/modules/postgres"
	redisModule "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/flashgate/flashgate/internal/domain/order"
	"github.com/flashgate/flashgate/internal/infrastructure/kafka"
	"github.com/flashgate/flashgate/internal/infrastructure/postgres"
	"github.com/flashgate/flashgate/internal/infrastructure/redisstore"
	"github.com/flashgate/flashgate/internal/services"
)

// flashSaleEnv wires a real Redis, Kafka, and Postgres together exactly the
// way cmd/ingestion and cmd/worker do, so the two services can be driven
// end to end against real infrastructure.
type flashSaleEnv struct {
	redisClient *redis.Client
	producer    *kafka.Producer
	consumer    *kafka.Consumer
	store       *postgres.Store

	ingestion   *services.IngestionService
	fulfillment *services.FulfillmentService

	ordersTopic string
}

func setupFlashSaleEnv(t *testing.T, ordersTopic, consumerGroup string) *flashSaleEnv {
	t.Helper()
	ctx := context.Background()

	redisContainer, err := redisModule.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithOccurrence(1),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisContainer.Terminate(context.Background()) })

	redisHost, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	redisPort, err := redisContainer.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	redisClient := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port())})
	t.Cleanup(func() { _ = redisClient.Close() })
	require.NoError(t, redisClient.Ping(ctx).Err())

	postgresContainer, err := postgresModule.Run(ctx,
		"postgres:16-alpine",
		postgresModule.WithDatabase("flashgate"),
		postgresModule.WithUsername("flashgate"),
		postgresModule.WithPassword("flashgate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(10*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = postgresContainer.Terminate(context.Background()) })

	dsn, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	store, err := postgres.NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Bootstrap(ctx))

	kafkaContainer, err := kafkaModule.Run(ctx, "confluentinc/confluent-local:7.6.0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaContainer.Terminate(context.Background()) })

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)

	producer, err := kafka.NewProducer(brokers, ordersTopic)
	require.NoError(t, err)
	t.Cleanup(producer.Close)

	consumer, err := kafka.NewConsumer(brokers, ordersTopic, consumerGroup)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	logger := zaptest.NewLogger(t)

	counter := redisstore.NewCounterStore(redisClient)
	idem := redisstore.NewIdempotencyStore(redisClient)
	ingestion := services.NewIngestionService(counter, idem, producer, logger, time.Minute).
		WithProductChecker(store)

	fulfillment := services.NewFulfillmentService(consumer, store, producer, logger, "orders-dlq", 3)

	return &flashSaleEnv{
		redisClient: redisClient,
		producer:    producer,
		consumer:    consumer,
		store:       store,
		ingestion:   ingestion,
		fulfillment: fulfillment,
		ordersTopic: ordersTopic,
	}
}

// A full happy-path order: admitted, validated, reserved, logged, and
// eventually fulfilled into the record of truth.
func TestFlashSale_HappyPathReservationIsFulfilled(t *testing.T) {
	env := setupFlashSaleEnv(t, "orders-happy-path", "worker-happy-path")
	ctx := context.Background()

	require.NoError(t, env.store.SeedProduct(ctx, "iphone-15", 1))
	require.NoError(t, env.ingestion.Init(ctx, "iphone-15", 1))

	require.NoError(t, env.ingestion.Order(ctx, "iphone-15", "user-1", "token-1"))

	require.NoError(t, env.fulfillment.RunOnce(ctx))

	exists, err := env.store.ProductExists(ctx, "iphone-15")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 1, countOrders(t, env, "iphone-15"))
}

// A burst of concurrent requests against a small counter never oversells
// the counter store, and every granted reservation reaches the durable
// store exactly once once the worker catches up.
func TestFlashSale_ConcurrentBurstNeverOversellsEndToEnd(t *testing.T) {
	env := setupFlashSaleEnv(t, "orders-burst", "worker-burst")
	ctx := context.Background()

	const stock = 10
	require.NoError(t, env.store.SeedProduct(ctx, "widget", stock))
	require.NoError(t, env.ingestion.Init(ctx, "widget", stock))

	const requests = 60
	var wg sync.WaitGroup
	results := make([]error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = env.ingestion.Order(ctx, "widget", "user", fmt.Sprintf("burst-token-%d", i))
		}(i)
	}
	wg.Wait()

	success := 0
	for _, err := range results {
		if err == nil {
			success++
		}
	}
	assert.Equal(t, stock, success)

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, env.fulfillment.RunOnce(ctx))
		count, err := env.store.OrdersForProduct(ctx, "widget")
		require.NoError(t, err)
		if count >= stock {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	final, err := env.store.OrdersForProduct(ctx, "widget")
	require.NoError(t, err)
	assert.Equal(t, stock, final)
}

// Two requests sharing an idempotency token reserve and fulfill exactly
// once.
func TestFlashSale_DuplicateIdempotencyTokenFulfillsOnce(t *testing.T) {
	env := setupFlashSaleEnv(t, "orders-dup", "worker-dup")
	ctx := context.Background()

	require.NoError(t, env.store.SeedProduct(ctx, "widget", 5))
	require.NoError(t, env.ingestion.Init(ctx, "widget", 5))

	require.NoError(t, env.ingestion.Order(ctx, "widget", "user-1", "shared-token"))
	err := env.ingestion.Order(ctx, "widget", "user-1", "shared-token")
	require.ErrorIs(t, err, order.ErrDuplicate)

	require.NoError(t, env.fulfillment.RunOnce(ctx))

	assert.Equal(t, 1, countOrders(t, env, "widget"))
}

func countOrders(t *testing.T, env *flashSaleEnv, productID string) int {
	t.Helper()
	count, err := env.store.OrdersForProduct(context.Background(), productID)
	require.NoError(t, err)
	return count
}
