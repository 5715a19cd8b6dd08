package config_test

import (
	"testing"
	"time"

	"finetune-backend/internal/config"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	OpenAI config.OpenAIConfig
	Cache  config.CacheConfig
}

func TestParseDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	var cfg testConfig
	require.NoError(t, env.Parse(&cfg))

	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, 2, cfg.OpenAI.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.OpenAI.PollInterval)
	assert.Equal(t, config.CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, "response-cache", cfg.Cache.Bucket)
	assert.Equal(t, "us-east-1", cfg.Cache.S3.S3Region)
	assert.NoError(t, cfg.Cache.Validate())

	client := cfg.OpenAI.Client()
	assert.Equal(t, "sk-test", client.APIKey)
	assert.Equal(t, 10*time.Second, client.PollInterval)
}

func TestParseRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	var cfg testConfig
	assert.Error(t, env.Parse(&cfg))
}

func TestCacheValidate(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("RESPONSE_CACHE", "redis")
	t.Setenv("RESPONSE_CACHE_TTL", "1h")

	var cfg testConfig
	require.NoError(t, env.Parse(&cfg))
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Error(t, cfg.Cache.Validate())

	cfg.Cache.RedisAddr = "localhost:6379"
	assert.NoError(t, cfg.Cache.Validate())

	cfg.Cache.Backend = "memcached"
	assert.Error(t, cfg.Cache.Validate())
}
