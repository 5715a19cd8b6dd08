package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finetune-backend/cmd"
	"finetune-backend/internal/config"
	"finetune-backend/internal/database"
	"finetune-backend/internal/finetune"
	"finetune-backend/internal/messaging"
	"finetune-backend/internal/openaiapi"
	"finetune-backend/internal/worker"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerConfig struct {
	DatabaseURL     string        `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL     string        `env:"RABBITMQ_URL,notEmpty,required"`
	TrackerInterval time.Duration `env:"TRACKER_INTERVAL" envDefault:"30s"`
	MetricsPort     string        `env:"METRICS_PORT" envDefault:"9090"`

	OpenAI config.OpenAIConfig
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	client := openaiapi.NewClient(cfg.OpenAI.Client())
	manager := finetune.NewManager(client, client, nil)

	processor := worker.NewTaskProcessor(db, manager, receiver, openaiapi.IsPermanent)
	tracker := worker.NewTracker(db, manager, cfg.TrackerInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Start()
	go tracker.Run(ctx)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, stopping worker...")

	cancel()
	processor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("error shutting down metrics server: %v", err)
	}

	log.Println("Worker process stopped.")
}
