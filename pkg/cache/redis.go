package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"

	"github.com/tonlite/litegate/pkg/lite"
	"github.com/tonlite/litegate/pkg/log"
)

// Redis is a shared Backend for multi-instance deployments, grounded on
// RedisCacheManager's ring.aioredis-backed storage: values are JSON-
// encoded (the source pickles; Go prefers a portable wire format) and
// stored with the per-method TTL as the key's own expiry.
type Redis struct {
	client *redis.Client
}

// NewRedis dials a Redis server at endpoint:port with the given command
// timeout, mirroring RedisSettings.from_environment('cache').
func NewRedis(endpoint string, port int, timeout time.Duration) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", endpoint, port),
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (lite.Result, bool) {
	raw, err := r.client.WithContext(ctx).Get(key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.WithComponent("cache").Warn().Err(err).Msg("redis get failed")
		}
		return nil, false
	}
	var res lite.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		log.WithComponent("cache").Warn().Err(err).Msg("redis value decode failed")
		return nil, false
	}
	return res, true
}

func (r *Redis) Set(ctx context.Context, key string, value lite.Result, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.WithComponent("cache").Warn().Err(err).Msg("redis value encode failed")
		return
	}
	if err := r.client.WithContext(ctx).Set(key, raw, ttl).Err(); err != nil {
		log.WithComponent("cache").Warn().Err(err).Msg("redis set failed")
	}
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error { return r.client.Close() }
