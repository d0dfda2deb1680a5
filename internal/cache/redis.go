package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisConfig holds Redis connection settings for the shared cache backend.
type RedisConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Password  string `yaml:"password" mapstructure:"password"`
	DB        int    `yaml:"db" mapstructure:"db"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
	// Retention keeps expired entries readable for this long after
	// ExpiresAt before Redis evicts them.
	Retention time.Duration `yaml:"retention" mapstructure:"retention"`
}

// RedisClient is the subset of *redis.Client the backend uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisBackend stores entries as JSON values with a native Redis TTL, so
// several workers can share one cache.
type RedisBackend struct {
	client    RedisClient
	keyPrefix string
	retention time.Duration
	nowFunc   func() time.Time
}

const defaultRedisPrefix = "contact:cache:"

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, eris.Wrap(err, "cache: connect to redis")
	}
	return NewRedisBackendWithClient(client, cfg.KeyPrefix, cfg.Retention), client, nil
}

// NewRedisBackendWithClient creates a backend over an existing client.
func NewRedisBackendWithClient(client RedisClient, keyPrefix string, retention time.Duration) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = defaultRedisPrefix
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisBackend{
		client:    client,
		keyPrefix: keyPrefix,
		retention: retention,
		nowFunc:   time.Now,
	}
}

// Get implements Backend.
func (b *RedisBackend) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := b.client.Get(ctx, b.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: redis get %s", key)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, eris.Wrapf(err, "cache: decode redis entry %s", key)
	}
	return &e, nil
}

// Put implements Backend.
func (b *RedisBackend) Put(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "cache: encode redis entry")
	}
	ttl := e.ExpiresAt.Sub(b.nowFunc()) + b.retention
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, b.keyPrefix+e.Key, raw, ttl).Err(); err != nil {
		return eris.Wrapf(err, "cache: redis set %s", e.Key)
	}
	return nil
}
