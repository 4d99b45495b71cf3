package attempts

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares attempt counts between every worker of a backend.
type Redis struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

// NewRedis connects to redisURL and pings it.
func NewRedis(ctx context.Context, redisURL, keyPrefix string, ttl time.Duration) (*Redis, *redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisFromClient(client, keyPrefix, ttl), client, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client redis.Cmdable, keyPrefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (r *Redis) key(k string) string {
	return r.keyPrefix + ":" + k
}

func (r *Redis) Incr(ctx context.Context, key string) (int, error) {
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, r.key(key))
		if r.ttl > 0 {
			pipe.Expire(ctx, r.key(key), r.ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count attempt: %w", err)
	}
	return int(incr.Val()), nil
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset attempts: %w", err)
	}
	return nil
}
