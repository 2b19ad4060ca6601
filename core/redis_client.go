// Package core provides the shared Redis client wrapper used by every
// storage-backed component in this module: the domain registry, the
// blacklist cache, and the stream log. It centralizes connection setup,
// key namespacing, and health checking so those packages stay focused on
// their own semantics.
//
// Namespacing: every key is prefixed "<namespace>:<key>" so the pipeline's
// keys don't collide with anything else sharing the same Redis instance.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClient is a namespaced wrapper around go-redis's *redis.Client.
type RedisClient struct {
	client    *redis.Client
	namespace string
	logger    Logger
}

// RedisClientOptions configures the Redis client.
type RedisClientOptions struct {
	RedisURL  string
	Namespace string
	Logger    Logger
}

// NewRedisClient connects to Redis and verifies the connection with a Ping
// before returning. A nil Logger is replaced with NoOpLogger.
func NewRedisClient(opts RedisClientOptions) (*RedisClient, error) {
	logger := opts.Logger
	if logger == nil {
		logger = NoOpLogger{}
	}

	if opts.RedisURL == "" {
		logger.Error("redis client misconfigured", map[string]interface{}{
			"error": "redis URL is required",
		})
		return nil, fmt.Errorf("redis URL is required: %w", ErrMissingConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		logger.Error("invalid redis URL", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("invalid redis URL: %w", ErrInvalidConfiguration)
	}

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("failed to connect to redis: %w", ErrConnectionFailed)
	}

	logger.Info("redis client connected", map[string]interface{}{
		"namespace": opts.Namespace,
	})

	return &RedisClient{client: client, namespace: opts.Namespace, logger: logger}, nil
}

// Raw exposes the underlying *redis.Client for packages (streamlog,
// registry) that need stream/consumer-group commands this wrapper doesn't
// cover directly.
func (r *RedisClient) Raw() *redis.Client { return r.client }

// Close closes the underlying connection.
func (r *RedisClient) Close() error {
	r.logger.Info("closing redis client", map[string]interface{}{"namespace": r.namespace})
	return r.client.Close()
}

// Namespace returns the configured key namespace.
func (r *RedisClient) Namespace() string { return r.namespace }

// Key formats a bare key with the client's namespace.
func (r *RedisClient) Key(key string) string {
	if r.namespace == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", r.namespace, key)
}

// --- Key/value operations (domain registry, blacklist cache) ---

func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, r.Key(key)).Result()
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.Set(ctx, r.Key(key), value, ttl).Err()
}

func (r *RedisClient) Del(ctx context.Context, keys ...string) error {
	formatted := make([]string, len(keys))
	for i, key := range keys {
		formatted[i] = r.Key(key)
	}
	return r.client.Del(ctx, formatted...).Err()
}

func (r *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, r.Key(key), ttl).Err()
}

func (r *RedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, r.Key(key)).Result()
}

// --- Sorted set operations (not used by the blacklist cache, whose LRU is
// held in process) ---

func (r *RedisClient) ZAdd(ctx context.Context, key string, members ...*redis.Z) error {
	return r.client.ZAdd(ctx, r.Key(key), members...).Err()
}

func (r *RedisClient) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	return r.client.ZRemRangeByRank(ctx, r.Key(key), start, stop).Err()
}

func (r *RedisClient) ZCard(ctx context.Context, key string) (int64, error) {
	return r.client.ZCard(ctx, r.Key(key)).Result()
}

func (r *RedisClient) ZScore(ctx context.Context, key, member string) (float64, error) {
	return r.client.ZScore(ctx, r.Key(key), member).Result()
}

// --- Health ---

// HealthCheck pings Redis, returning a wrapped ErrConnectionFailed on
// failure so callers can classify it via errors.Is.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logger.ErrorWithContext(ctx, "redis health check failed", map[string]interface{}{
			"error": err.Error(),
		})
		return fmt.Errorf("redis ping failed: %w", ErrConnectionFailed)
	}
	return nil
}
