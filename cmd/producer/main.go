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
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/taskflow-ai/taskflow/configs"
	"github.com/taskflow-ai/taskflow/internal/autotask"
	"github.com/taskflow-ai/taskflow/internal/domain"
	"github.com/taskflow-ai/taskflow/internal/errval"
	"github.com/taskflow-ai/taskflow/internal/prediction"
	"github.com/taskflow-ai/taskflow/internal/producer"
	"github.com/taskflow-ai/taskflow/internal/rabbitmq"
	"github.com/taskflow-ai/taskflow/internal/telemetry"
)

var rabbitIsReady bool

func main() {
	cfg := configs.InitConfig()

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "task-producer", cfg.Exporter.OTLPEndpoint)
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
	slog.Info("RabbitMQ has been initialized successfully")

	predictor := prediction.NewClient(
		cfg.Prediction.BaseURL,
		cfg.Prediction.Timeout(),
		cfg.Prediction.HealthCacheWindow(),
		metrics,
	)

	publisher := producer.NewPublisher(rabbitClient, predictor, metrics)
	supervisor := autotask.NewSupervisor(publisher)
	if cfg.App.AutoSendEnabled {
		if err := supervisor.Start(cfg.App.AutoSendSchedule); err != nil {
			log.Fatal(err)
		}
	}

	router := setupHTTPServer(cfg, publisher, predictor, rabbitClient, supervisor, metrics)
	srv := &http.Server{
		Addr:    ":" + cfg.App.ServerPort,
		Handler: router,
	}

	// Initializing the server in a goroutine so that
	// it won't block the graceful shutdown handling below
	go func() {
		log.Printf("Starting server on port %s\n", cfg.App.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if supervisor.Status().Running {
		if err := supervisor.Stop(); err != nil {
			slog.Error("Error occurred while stopping auto-send", "error", err.Error())
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

func setupHTTPServer(cfg *configs.Config, publisher *producer.Publisher, predictor *prediction.Client, rabbitClient *rabbitmq.Client, supervisor *autotask.Supervisor, metrics *telemetry.Metrics) *gin.Engine {
	r := gin.Default()
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := v.RegisterValidation("validate_task_type", validateTaskType); err != nil {
			log.Fatal("failed to bind validation rule of validate_task_type")
		}
		if err := v.RegisterValidation("validate_priority", validatePriority); err != nil {
			log.Fatal("failed to bind validation rule of validate_priority")
		}
	}

	tasks := r.Group("/tasks")
	tasks.POST("", func(c *gin.Context) {
		req := domain.RouterRequestAddTask{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error_code": "invalid_request"})
			return
		}

		task := taskFromRequest(req)
		if err := publisher.Publish(c.Request.Context(), task); err != nil {
			c.JSON(statusForPublishError(err), gin.H{"error_code": codeForPublishError(err)})
			return
		}

		c.JSON(http.StatusOK, gin.H{"task_id": task.ID, "queue_recommendation": task.RoutingKey})
	})

	tasks.POST("/batch", func(c *gin.Context) {
		req := domain.RouterRequestAddTaskBatch{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding batch request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error_code": "invalid_request"})
			return
		}

		batch := make([]*domain.Task, 0, len(req.Tasks))
		for _, item := range req.Tasks {
			batch = append(batch, taskFromRequest(item))
		}
		succeeded := publisher.PublishBatch(c.Request.Context(), batch)
		c.JSON(http.StatusOK, gin.H{"submitted": len(batch), "succeeded": succeeded})
	})

	tasks.GET("/types", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"types": domain.AllTaskTypes()})
	})

	auto := r.Group("/autotask")
	auto.POST("/start", func(c *gin.Context) {
		schedule := cfg.App.AutoSendSchedule
		if override := c.Query("schedule"); override != "" {
			schedule = override
		}
		if err := supervisor.Start(schedule); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, supervisor.Status())
	})
	auto.POST("/stop", func(c *gin.Context) {
		if err := supervisor.Stop(); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, supervisor.Status())
	})
	auto.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, supervisor.Status())
	})

	r.GET(cfg.Exporter.MetricsPath, gin.WrapH(metrics.Handler()))

	r.GET("/readiness", func(c *gin.Context) {
		if rabbitIsReady {
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
		// Prediction being down only degrades routing; report it but stay up.
		c.JSON(http.StatusOK, gin.H{"status": "up", "prediction_healthy": predictor.Health(c.Request.Context())})
	})

	return r
}

func taskFromRequest(req domain.RouterRequestAddTask) *domain.Task {
	task := &domain.Task{
		ID:          uuid.NewString(),
		Type:        domain.TaskType(req.TaskType),
		Title:       req.Title,
		Description: req.Description,
		MaxRetries:  3,
		CreatedAt:   time.Now().UTC(),
		Parameters:  req.Parameters,
		Features:    req.Features,
	}
	if req.ManualPriority != nil {
		task.ManualPriority = *req.ManualPriority
	}
	if req.MaxRetries != nil {
		task.MaxRetries = *req.MaxRetries
	}
	return task
}

func statusForPublishError(err error) int {
	if errors.Is(err, errval.ErrPublishOverflow) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func codeForPublishError(err error) string {
	if errors.Is(err, errval.ErrPublishOverflow) {
		return "queue_overflow"
	}
	return "publish_failed"
}

var validateTaskType validator.Func = func(fl validator.FieldLevel) bool {
	return domain.ValidTaskType(fl.Field().String())
}

var validatePriority validator.Func = func(fl validator.FieldLevel) bool {
	priority := fl.Field().Int()
	return priority >= 0 && priority <= 10
}
