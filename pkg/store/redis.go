package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/agency-portal/pkg/config"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key does not exist or has been evicted.
var ErrMiss = errors.New("store: key not found")

// ConnectRedis parses the configured URL and pings the server before returning the client.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opt.DB = cfg.DB
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// IdempotencyStore satisfies middleware.IdempotencyStore.
type IdempotencyStore struct {
	client *redis.Client
}

func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (s *IdempotencyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return s.client.Set(ctx, key, value, ttl).Err()
}

// DedupStore remembers processed ids for a bounded time so redelivered webhooks are ignored.
// Entries are evicted by Redis once their TTL lapses.
type DedupStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewDedupStore(client *redis.Client, prefix string, ttl time.Duration) *DedupStore {
	return &DedupStore{client: client, prefix: prefix, ttl: ttl}
}

// FirstSeen atomically marks id and reports whether this call was the first to do so.
func (s *DedupStore) FirstSeen(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return s.client.SetNX(ctx, s.prefix+id, time.Now().Unix(), s.ttl).Result()
}

// Forget drops a mark so that a failed delivery can be retried by the sender.
func (s *DedupStore) Forget(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return s.client.Del(ctx, s.prefix+id).Err()
}
