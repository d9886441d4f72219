package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisKey is the Redis key holding the cache snapshot.
	DefaultRedisKey = "gomotion:cache"

	// DefaultRedisTTL bounds how long an abandoned snapshot survives
	// if the daemon stops updating it.
	DefaultRedisTTL = 24 * time.Hour
)

// RedisStoreConfig holds Redis store configuration.
type RedisStoreConfig struct {
	// URL is the Redis connection URL (e.g. "redis://localhost:6379/0").
	URL string

	// Key overrides the snapshot key (default "gomotion:cache").
	Key string

	// TTL is the snapshot expiry in Redis (default 24h).
	TTL time.Duration
}

// RedisStore persists the cache snapshot in Redis, for setups where several
// editor instances share one motion cache.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = DefaultRedisKey
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultRedisTTL
	}

	slog.Info("redis cache store connected", "key", key, "ttl", ttl)

	return &RedisStore{client: client, key: key, ttl: ttl}, nil
}

// Load reads the snapshot from Redis. A missing key is not an error.
func (s *RedisStore) Load(ctx context.Context) ([]PersistedEntry, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache snapshot from redis: %w", err)
	}

	var entries []PersistedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse cache snapshot from redis: %w", err)
	}
	return entries, nil
}

// Save writes the snapshot to Redis under the configured key.
func (s *RedisStore) Save(ctx context.Context, entries []PersistedEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal cache snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache snapshot in redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
