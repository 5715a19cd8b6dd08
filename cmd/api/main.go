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
	"finetune-backend/internal/api"
	"finetune-backend/internal/completions"
	"finetune-backend/internal/config"
	"finetune-backend/internal/database"
	"finetune-backend/internal/finetune"
	"finetune-backend/internal/messaging"
	"finetune-backend/internal/openaiapi"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`
	APIPort     string `env:"API_PORT" envDefault:"8001"`

	OpenAI config.OpenAIConfig
	Cache  config.CacheConfig
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	cache, closeCache, err := cmd.NewResponseCache(context.Background(), cfg.Cache, db, ".")
	if err != nil {
		log.Fatalf("Failed to create response cache: %v", err)
	}
	defer closeCache()

	client := openaiapi.NewClient(cfg.OpenAI.Client())
	manager := finetune.NewManager(client, client, nil)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	apiHandler := api.NewBackendService(db, publisher, manager, completions.NewClient(client, cache), cache)

	r.Handle("/metrics", promhttp.Handler())
	// no request timeout middleware: event streams stay open until the
	// fine-tune finishes
	r.Route("/api/v1", apiHandler.AddRoutes)

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
