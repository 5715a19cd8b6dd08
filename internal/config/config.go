package config

import (
	"fmt"
	"slices"
	"time"

	"finetune-backend/internal/openaiapi"
	"finetune-backend/internal/storage"
)

// The structs below are embedded into the per-binary config structs and parsed
// with github.com/caarlos0/env.

type OpenAIConfig struct {
	APIKey       string        `env:"OPENAI_API_KEY,notEmpty,required"`
	Organization string        `env:"OPENAI_ORG_ID"`
	BaseURL      string        `env:"OPENAI_BASE_URL"`
	MaxRetries   int           `env:"OPENAI_MAX_RETRIES" envDefault:"2"`
	PollInterval time.Duration `env:"EVENT_POLL_INTERVAL" envDefault:"10s"`
}

func (c OpenAIConfig) Client() openaiapi.Config {
	return openaiapi.Config{
		APIKey:       c.APIKey,
		Organization: c.Organization,
		BaseURL:      c.BaseURL,
		MaxRetries:   c.MaxRetries,
		PollInterval: c.PollInterval,
	}
}

type S3Config struct {
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

func (c S3Config) Provider() storage.S3ProviderConfig {
	return storage.S3ProviderConfig{
		S3EndpointURL:     c.S3EndpointURL,
		S3AccessKeyID:     c.S3AccessKeyID,
		S3SecretAccessKey: c.S3SecretAccessKey,
		S3Region:          c.S3Region,
	}
}

const (
	CacheNone     = "none"
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CacheDatabase = "database"
	CacheS3       = "s3"
	CacheLocal    = "local"
)

var cacheBackends = []string{CacheNone, CacheMemory, CacheRedis, CacheDatabase, CacheS3, CacheLocal}

type CacheConfig struct {
	Backend string        `env:"RESPONSE_CACHE" envDefault:"memory"`
	TTL     time.Duration `env:"RESPONSE_CACHE_TTL" envDefault:"0s"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	Bucket string `env:"CACHE_BUCKET" envDefault:"response-cache"`
	S3     S3Config
}

func (c CacheConfig) Validate() error {
	if !slices.Contains(cacheBackends, c.Backend) {
		return fmt.Errorf("invalid RESPONSE_CACHE '%s', expected one of %v", c.Backend, cacheBackends)
	}
	if c.Backend == CacheRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when RESPONSE_CACHE is '%s'", CacheRedis)
	}
	return nil
}
