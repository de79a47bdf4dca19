package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisCache stores query results in Redis so that multiple gateway
// instances fronting the same backend share one cache
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisCache creates a Redis-backed cache and verifies connectivity
func NewRedisCache(addr, password string, db int, ttl time.Duration, logger zerolog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "cache").Logger(),
	}, nil
}

// Get retrieves a value from Redis. Connectivity failures are treated
// as a miss; the gateway falls through to the backend.
func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := rc.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			rc.logger.Warn().Err(err).Msg("redis get failed")
		}
		return nil, false
	}
	return data, true
}

// Set stores a value in Redis with the configured TTL
func (rc *RedisCache) Set(ctx context.Context, key string, value []byte) {
	if err := rc.client.Set(ctx, key, value, rc.ttl).Err(); err != nil {
		rc.logger.Warn().Err(err).Msg("redis set failed")
	}
}

// Close closes the Redis connection
func (rc *RedisCache) Close() {
	if err := rc.client.Close(); err != nil {
		rc.logger.Warn().Err(err).Msg("redis close failed")
	}
}
