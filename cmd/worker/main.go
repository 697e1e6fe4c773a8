package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskflow-ai/taskflow/configs"
	"github.com/taskflow-ai/taskflow/internal/consumer"
	"github.com/taskflow-ai/taskflow/internal/domain"
	"github.com/taskflow-ai/taskflow/internal/rabbitmq"
	"github.com/taskflow-ai/taskflow/internal/redis"
	"github.com/taskflow-ai/taskflow/internal/telemetry"
	"github.com/taskflow-ai/taskflow/internal/training"
	"github.com/taskflow-ai/taskflow/pkg/process"
)

var rabbitIsReady, redisIsReady bool

func main() {
	cfg := configs.InitConfig()

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))

	// Optional args narrow this worker to a subset of destinations, e.g.
	// `worker critical high` runs only the urgent groups.
	policies := consumer.PoliciesFromConfig(cfg.Consumer)
	if len(os.Args) > 1 {
		policies = filterPolicies(policies, os.Args[1:])
		if len(policies) == 0 {
			log.Fatal("No valid destination names were provided in the arguments")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "task-worker", cfg.Exporter.OTLPEndpoint)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("Error occurred while shutting down trace exporter", "error", err.Error())
		}
	}()

	metrics := telemetry.NewMetrics()

	rabbitClient, err := rabbitmq.NewClient(ctx, cfg.RabbitMQ.ToRabbitConnectionUri())
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := rabbitClient.Close(); err != nil {
			slog.Error("An error occurred while closing RabbitMQ connection", "error", err.Error())
		}
	}()
	rabbitIsReady = true
	slog.Info("RabbitMQ connection has been initialized successfully")

	redisClient, err := redis.NewClient(ctx, cfg.Redis.ToRedisConnectionUri(), 30*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			slog.Error("An error occurred while closing Redis connection", "error", err.Error())
		}
	}()
	redisIsReady = true
	slog.Info("Redis connection has been initialized successfully")

	reporter := training.NewReporter(cfg.Prediction.BaseURL, cfg.Prediction.Timeout(), cfg.Training.QueueSize)
	go reporter.Run(ctx)

	pool := consumer.NewPool(
		rabbitClient,
		rabbitClient,
		policies,
		process.Handle,
		metrics,
		consumer.WithIdempotencyGuard(redisClient),
		consumer.WithTrainingReporter(reporter, cfg.Training.ReportFailures),
	)

	poolDone := make(chan error, 1)
	go func() {
		poolDone <- pool.Run(ctx)
	}()

	// Running HTTP Server in order to have liveness and readiness HTTP APIs
	go setUpHealthCheckerAPIs(ctx, cfg, rabbitClient, redisClient, metrics)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("Worker is running. To exit press CTRL+C")
	<-sigChan
	slog.Info("Worker is shutting down...")

	cancel()
	select {
	case err := <-poolDone:
		if err != nil {
			slog.Error("Consumer pool exited with error", "error", err.Error())
		}
	case <-time.After(30 * time.Second):
		slog.Error("Consumer pool did not drain in time, exiting anyway")
	}
}

func filterPolicies(policies map[domain.Destination]consumer.Policy, names []string) map[domain.Destination]consumer.Policy {
	filtered := make(map[domain.Destination]consumer.Policy)
	for _, name := range names {
		dest := domain.Destination(name)
		if !dest.Valid() {
			slog.Error("Ignoring unknown destination argument", "destination", name)
			continue
		}
		filtered[dest] = policies[dest]
	}
	return filtered
}

func setUpHealthCheckerAPIs(ctx context.Context, cfg *configs.Config, rabbitClient *rabbitmq.Client, redisClient *redis.Client, metrics *telemetry.Metrics) {
	r := gin.Default()
	r.GET("/readiness", func(c *gin.Context) {
		if rabbitIsReady && redisIsReady {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
		} else {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		}
	})
	r.GET("/liveness", func(c *gin.Context) {
		if !rabbitClient.IsHealthy() {
			slog.Error("Rabbit is not healthy")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}
		if err := redisClient.Ping(c.Request.Context()); err != nil {
			slog.Error("Redis seem not to be pingable in liveness API", "error", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "up"})
	})
	r.GET(cfg.Exporter.MetricsPath, gin.WrapH(metrics.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.App.ServerPort,
		Handler: r,
	}

	go func() {
		log.Printf("Starting health server on port %s\n", cfg.App.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("listen: %s\n", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
