package respcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "respcache:"

type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache stores responses under prefix+key. A zero ttl keeps entries
// until they are overwritten or cleared.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) redisKey(key uuid.UUID) string {
	return c.prefix + key.String()
}

func (c *RedisCache) Put(ctx context.Context, key uuid.UUID, response string) error {
	if err := c.client.Set(ctx, c.redisKey(key), response, c.ttl).Err(); err != nil {
		return fmt.Errorf("error storing response %s in redis: %w", key, err)
	}
	return nil
}

func (c *RedisCache) TryGet(ctx context.Context, key uuid.UUID) (string, bool, error) {
	response, err := c.client.Get(ctx, c.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error reading response %s from redis: %w", key, err)
	}
	return response, true, nil
}

func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()

	var batch []string
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("error deleting cached responses: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cached responses: %w", err)
	}
	return flush()
}
