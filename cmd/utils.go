package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"finetune-backend/internal/config"
	"finetune-backend/internal/respcache"
	"finetune-backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func newRedisClient(cfg config.CacheConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewResponseCache builds the cache selected by RESPONSE_CACHE. localRoot is
// the directory used by the "local" backend. The returned func releases any
// connection held by the cache.
func NewResponseCache(ctx context.Context, cfg config.CacheConfig, db *gorm.DB, localRoot string) (respcache.ResponseCache, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	noop := func() {}

	slog.Info("using response cache", "backend", cfg.Backend)

	switch cfg.Backend {
	case config.CacheNone:
		return respcache.NopCache{}, noop, nil

	case config.CacheMemory:
		return respcache.NewMemoryCache(), noop, nil

	case config.CacheRedis:
		client, err := newRedisClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		closeClient := func() {
			if err := client.Close(); err != nil {
				slog.Error("error closing redis client", "error", err)
			}
		}
		return respcache.NewRedisCache(client, "", cfg.TTL), closeClient, nil

	case config.CacheDatabase:
		return respcache.NewDatabaseCache(db), noop, nil

	case config.CacheS3:
		provider, err := storage.NewS3Provider(cfg.S3.Provider())
		if err != nil {
			return nil, nil, err
		}
		cache, err := respcache.NewObjectStoreCache(ctx, provider, cfg.Bucket, "responses")
		if err != nil {
			return nil, nil, err
		}
		return cache, noop, nil

	case config.CacheLocal:
		cache, err := respcache.NewObjectStoreCache(ctx, storage.NewLocalProvider(filepath.Join(localRoot, "storage")), cfg.Bucket, "responses")
		if err != nil {
			return nil, nil, err
		}
		return cache, noop, nil
	}

	return nil, nil, fmt.Errorf("unsupported response cache '%s'", cfg.Backend)
}
