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
	"github.com/taskflow-ai/taskflow/internal/predictionsvc"
	"github.com/taskflow-ai/taskflow/internal/telemetry"
)

func main() {
	cfg := configs.InitConfig()

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))

	metrics := telemetry.NewMetrics()
	service := predictionsvc.NewService(cfg.Service.TrainingBufferCap, cfg.Service.JitterEnabled, metrics)
	service.Initialize()

	router := predictionsvc.Router(service)
	router.GET(cfg.Exporter.MetricsPath, gin.WrapH(metrics.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Service.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Starting prediction service on port %s\n", cfg.Service.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down prediction service...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
