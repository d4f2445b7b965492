/**
 * @description
 * This is the main entry point for the bukaFresh billing service. It is
 * responsible for initializing all components of the service, including
 * configuration, database connection, external API clients, message brokers,
 * repositories, the core application service, the cron scheduler, and the
 * HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log/slog, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/onepipeclient: Client for the OnePipe payments API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/HeartyTjan/bukafresh-store/internal/api"
	"github.com/HeartyTjan/bukafresh-store/internal/app"
	"github.com/HeartyTjan/bukafresh-store/internal/config"
	"github.com/HeartyTjan/bukafresh-store/internal/store"
	"github.com/HeartyTjan/bukafresh-store/pkg/onepipeclient"
	"github.com/HeartyTjan/bukafresh-store/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		logger.Error("jwt secret must be configured", "env", "JWT_SECRET")
		os.Exit(1)
	}

	logger.Info("starting billing service", "port", cfg.ServerPort)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database url parse failed", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connected")

	// The service keeps running without RabbitMQ; notifications degrade to
	// logged skips via the fallback producer.
	var producer rabbitmq.Publisher
	if eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		logger.Warn("rabbitmq producer unavailable; using fallback", "error", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		logger.Info("rabbitmq producer connected")
	}

	onePipeClient := onepipeclient.NewClient(cfg.OnePipeAPIBaseURL, cfg.OnePipeAPIKey)

	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Warn("redis url missing; rate limiting disabled", "env", "REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed; rate limiting disabled", "error", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				logger.Warn("redis ping failed; rate limiting disabled", "error", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				logger.Info("redis connected")
			}
		}
	}

	repository := store.NewPostgresRepository(dbpool)
	service := app.NewService(repository, onePipeClient, producer)

	limiter := app.NewRedisRateLimiter(nil, cfg.RedisRateLimitPrefix)
	if redisClient != nil {
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	jobs := app.NewJobs(service, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	handlers := api.NewHandlers(service, limiter, cfg)
	webhookHandler := api.NewWebhookHandler(service, cfg.OnePipeWebhookSecret)
	router := api.Routes(handlers, webhookHandler, cfg.JWTSecret)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}

	logger.Info("shutdown complete")
}
