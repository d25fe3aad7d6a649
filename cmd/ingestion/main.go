// Command ingestion runs the flash-sale front end: POST /init and
// POST /order, wired with env config, a zap logger, a gin engine, and
// graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flashgate/flashgate/internal/config"
	"github.com/flashgate/flashgate/internal/handlers"
	"github.com/flashgate/flashgate/internal/infrastructure/kafka"
	"github.com/flashgate/flashgate/internal/infrastructure/postgres"
	"github.com/flashgate/flashgate/internal/infrastructure/redisstore"
	"github.com/flashgate/flashgate/internal/logging"
	"github.com/flashgate/flashgate/internal/middleware"
	"github.com/flashgate/flashgate/internal/services"
)

func main() {
	cfg := config.LoadIngestionConfig()

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting ingestion service", zap.String("environment", cfg.Environment))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("failed to reach redis", zap.Error(err))
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.OrdersTopic)
	if err != nil {
		logger.Fatal("failed to create kafka producer", zap.Error(err))
	}
	defer producer.Close()

	counter := redisstore.NewCounterStore(redisClient)
	idem := redisstore.NewIdempotencyStore(redisClient)
	admission := redisstore.NewAdmissionGate(redisClient, cfg.Admission.BucketWidth)

	store, err := postgres.NewStore(context.Background(), cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("failed to reach postgres", zap.Error(err))
	}
	defer store.Close()

	ingestionService := services.NewIngestionService(counter, idem, producer, logger, cfg.IdempotencyTTL).
		WithProductChecker(store)
	orderHandler := handlers.NewOrderHandler(ingestionService, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Timeout(cfg.ExternalCallTimeout))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"POST"},
		AllowHeaders:     []string{"Content-Type", "x-idempotency-key", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.POST("/init", orderHandler.Init)
	router.POST("/order",
		middleware.Admission(admission, cfg.Admission.Cap, cfg.WaitingRoomURL, logger),
		orderHandler.Order,
	)

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		Handler:        router,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("listening", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down ingestion service")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
