/**
 * @description
 * Entry point for the fitness commerce API. It wires configuration, Postgres,
 * Redis, RabbitMQ and the IntaSend client into the application services,
 * starts the outbox dispatcher and serves HTTP until SIGINT or SIGTERM.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/api"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/app"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/config"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/platform"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/store"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/migrations"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/pkg/intasend"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/pkg/rabbitmq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found, relying on environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	logger := platform.NewLogger(os.Stdout, cfg.LogLevel)
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL must be configured")
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is not set; member routes will reject every request")
	}
	if cfg.InternalAPIKey == "" {
		logger.Warn("INTERNAL_API_KEY is not set; staff routes are disabled")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := platform.NewPool(rootCtx, cfg.DatabaseURL, platform.PoolSettings{MaxConns: 50, MinConns: 5})
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connected")

	if cfg.RunMigrations {
		if err := migrations.Apply(rootCtx, dbpool, logger); err != nil {
			logger.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	repository := store.NewPostgresRepository(dbpool, cfg.EventsExchange)

	var limiter app.RateLimiter
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL is not set; rate limiting disabled")
	} else if redisClient, err := connectRedis(rootCtx, cfg.RedisURL); err != nil {
		logger.Warn("redis unavailable; rate limiting disabled", "error", err)
	} else {
		defer redisClient.Close()
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
		logger.Info("redis connected")
	}

	emitter := app.NewActivityEmitter(repository, logger)
	orderService := app.NewOrderService(repository, emitter, logger, cfg.PaymentCurrency)
	if cfg.IntaSendPublicKey == "" {
		logger.Warn("INTASEND_PUBLIC_KEY is not set; online checkout will fail until configured")
	}
	gateway := intasend.NewClient(cfg.IntaSendBaseURL, cfg.IntaSendPublicKey, time.Duration(cfg.PaymentTimeoutSeconds)*time.Second)
	paymentService := app.NewPaymentService(gateway, repository, emitter, logger, app.PaymentConfig{
		AppBaseURL:       cfg.AppBaseURL,
		PublicAPIBaseURL: cfg.PublicAPIBaseURL,
		WebhookChallenge: cfg.IntaSendWebhookChallenge,
		Host:             cfg.AppBaseURL,
	})
	reservationService := app.NewReservationService(repository, repository, emitter, logger, cfg.RequireSubscriptionForBooking)
	accountService := app.NewAccountService(repository, repository, emitter, logger)

	dispatcher := app.NewOutboxDispatcher(repository, publisherFactory(cfg.RabbitMQURL, logger), logger,
		time.Duration(cfg.OutboxPollIntervalMs)*time.Millisecond)
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Run(rootCtx)
	}()

	handlers := api.NewHandlers(orderService, paymentService, reservationService, accountService, limiter, logger)
	router := api.NewRouter(handlers, api.RouterConfig{
		JWTSecret:                  cfg.JWTSecret,
		InternalAPIKey:             cfg.InternalAPIKey,
		AllowedOrigins:             cfg.AllowedOrigins(),
		CheckoutRateLimitPerMinute: cfg.CheckoutRateLimitPerMinute,
		BookingRateLimitPerMinute:  cfg.BookingRateLimitPerMinute,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutdown started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	<-dispatcherDone
	logger.Info("shutdown complete")
}

func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// publisherFactory dials RabbitMQ on demand. Without a broker URL events are
// logged and dropped, which keeps local development free of a broker.
func publisherFactory(amqpURL string, logger *slog.Logger) app.PublisherFactory {
	if amqpURL == "" {
		logger.Warn("RABBITMQ_URL is not set; lifecycle events will be logged instead of published")
		fallback := &rabbitmq.EventProducerFallback{Logger: logger}
		return func() (rabbitmq.Publisher, error) { return fallback, nil }
	}
	return func() (rabbitmq.Publisher, error) {
		producer, err := rabbitmq.NewEventProducer(amqpURL, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("rabbitmq producer connected")
		return producer, nil
	}
}
