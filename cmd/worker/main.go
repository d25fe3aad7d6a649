// Command worker runs the fulfillment worker: consumes the orders topic
// as part of the inventory-group consumer group and persists each
// reservation into Postgres. It also owns bootstrap: it creates the
// schema and seeds the demo product before it starts consuming.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/flashgate/flashgate/internal/config"
	"github.com/flashgate/flashgate/internal/infrastructure/kafka"
	"github.com/flashgate/flashgate/internal/infrastructure/postgres"
	"github.com/flashgate/flashgate/internal/logging"
	"github.com/flashgate/flashgate/internal/services"
)

func main() {
	cfg := config.LoadWorkerConfig()

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting fulfillment worker", zap.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer store.Close()

	if err := store.Bootstrap(ctx); err != nil {
		logger.Fatal("failed to bootstrap schema", zap.Error(err))
	}

	if err := store.SeedProduct(ctx, cfg.DefaultProductID, cfg.DefaultProductStock); err != nil {
		logger.Fatal("failed to seed default product", zap.Error(err))
	}
	logger.Info("seeded default product",
		zap.String("product_id", cfg.DefaultProductID),
		zap.Int("stock", cfg.DefaultProductStock),
	)

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.OrdersTopic, cfg.ConsumerGroup)
	if err != nil {
		logger.Fatal("failed to create kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	deadLetterProducer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.DeadLetterTopic)
	if err != nil {
		logger.Fatal("failed to create dead-letter producer", zap.Error(err))
	}
	defer deadLetterProducer.Close()

	fulfillment := services.NewFulfillmentService(
		consumer,
		store,
		deadLetterProducer,
		logger,
		cfg.DeadLetterTopic,
		cfg.MaxDivergenceRetries,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting down fulfillment worker")
		cancel()
	}()

	if err := fulfillment.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("fulfillment worker stopped unexpectedly", zap.Error(err))
	}
}
