package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
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
	"finetune-backend/internal/respcache"
	"finetune-backend/internal/worker"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type Config struct {
	Root            string        `env:"ROOT" envDefault:"./finetune-backend"`
	Port            int           `env:"PORT" envDefault:"3001"`
	TrackerInterval time.Duration `env:"TRACKER_INTERVAL" envDefault:"30s"`

	OpenAI config.OpenAIConfig
	Cache  config.CacheConfig
}

// createQueue re-publishes fine-tunes that were accepted but not submitted
// before the last shutdown, since the in-memory queue does not survive restarts.
// Publishing happens in the background so a backlog larger than the queue
// buffer does not block start-up.
func createQueue(db *gorm.DB) *messaging.InMemoryQueue {
	fineTunes, err := database.ListQueuedFineTunes(context.Background(), db)
	if err != nil {
		log.Fatalf("Failed to fetch queued fine-tunes from database: %v", err)
	}

	queue := messaging.NewInMemoryQueue()

	if len(fineTunes) > 0 {
		slog.Info("requeueing pending fine-tunes", "count", len(fineTunes))
	}

	go func() {
		for _, fineTune := range fineTunes {
			if err := queue.PublishFinetuneTask(context.Background(), messaging.FinetuneTaskPayload{
				FineTuneId: fineTune.Id,
			}); err != nil {
				slog.Error("failed to requeue fine-tune", "fine_tune_id", fineTune.Id, "error", err)
				return
			}
		}
	}()

	return queue
}

func createServer(db *gorm.DB, queue messaging.Publisher, manager *finetune.Manager, client *completions.Client, cache respcache.ResponseCache, port int) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	apiHandler := api.NewBackendService(db, queue, manager, client, cache)

	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", apiHandler.AddRoutes)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating directory for log file: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.Root, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port, "response_cache", cfg.Cache.Backend)

	db, err := database.NewSqliteDatabase(filepath.Join(cfg.Root, "db", "finetune-backend.db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	cache, closeCache, err := cmd.NewResponseCache(context.Background(), cfg.Cache, db, cfg.Root)
	if err != nil {
		log.Fatalf("Failed to create response cache: %v", err)
	}
	defer closeCache()

	queue := createQueue(db)

	client := openaiapi.NewClient(cfg.OpenAI.Client())
	manager := finetune.NewManager(client, client, nil)

	processor := worker.NewTaskProcessor(db, manager, queue, openaiapi.IsPermanent)
	tracker := worker.NewTracker(db, manager, cfg.TrackerInterval)

	server := createServer(db, queue, manager, completions.NewClient(client, cache), cache, cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("starting worker")
	go processor.Start()
	go tracker.Run(ctx)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down worker")
		cancel()
		processor.Stop()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
