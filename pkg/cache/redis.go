package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares entries between processes.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(ctx context.Context, addr, password string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (c *Redis) Get(ctx context.Context, namespace, key string) (string, error) {
	v, err := c.client.Get(ctx, redisKey(namespace, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("cache get %s/%s: %w", namespace, key, err)
	}
	return v, nil
}

func (c *Redis) Set(ctx context.Context, namespace, key, value string) error {
	return c.client.Set(ctx, redisKey(namespace, key), value, c.ttl).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}

func redisKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}
