package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis blob backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// MaxValueBytes caps a single value; zero disables the check.
	MaxValueBytes int64
}

// RedisStore keeps blobs as plain string values under a key prefix.
type RedisStore struct {
	rdb      redis.Cmdable
	prefix   string
	maxValue int64
}

// NewRedisClient dials Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("storage: redis ping: %w", err)
	}
	return client, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redis.Cmdable, prefix string, maxValueBytes int64) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "loom:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, maxValue: maxValueBytes}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: redis get %s: %w", key, err)
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, data []byte) error {
	if s.maxValue > 0 && int64(len(data)) > s.maxValue {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrQuotaExceeded, len(data), s.maxValue)
	}
	if err := s.rdb.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return classifyRedisError(key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("storage: redis del %s: %w", key, err)
	}
	return nil
}

// classifyRedisError maps maxmemory rejections onto ErrQuotaExceeded.
func classifyRedisError(key string, err error) error {
	if strings.HasPrefix(err.Error(), "OOM ") {
		return fmt.Errorf("%w: redis set %s: %v", ErrQuotaExceeded, key, err)
	}
	return fmt.Errorf("storage: redis set %s: %w", key, err)
}

var _ Blobs = (*RedisStore)(nil)
