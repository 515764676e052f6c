package contextstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps contexts in Redis so every instance behind a load balancer
// can redeem them. Take relies on GETDEL (Redis 6.2+) for single redemption.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// Compile-time check that RedisStore implements Store.
var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	cfg := applyOptions(opts)
	slog.Debug("NewRedisStore invoked", "ttl", cfg.TTL, "prefix", cfg.KeyPrefix)
	return &RedisStore{client: client, ttl: cfg.TTL, prefix: cfg.KeyPrefix}
}

// NewRedisStoreFromURL connects to the Redis instance described by url
// (redis://[:password@]host:port/db) and verifies the connection.
func NewRedisStoreFromURL(ctx context.Context, url string, opts ...Option) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		slog.Error("Redis ping failed", "error", err, "addr", redisOpts.Addr)
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", redisOpts.Addr, err)
	}
	slog.Debug("Redis ping successful", "addr", redisOpts.Addr)
	return NewRedisStore(client, opts...), nil
}

func (s *RedisStore) key(token string) string {
	return s.prefix + ":" + token
}

func (s *RedisStore) Put(ctx context.Context, kind string, payload []byte) (string, error) {
	token := NewToken(kind)
	if err := s.client.Set(ctx, s.key(token), payload, s.ttl).Err(); err != nil {
		slog.Error("RedisStore.Put failed", "error", err, "kind", kind)
		return "", fmt.Errorf("failed to store interaction context: %w", err)
	}
	slog.Debug("RedisStore.Put stored context", "kind", kind, "ttl", s.ttl)
	return token, nil
}

func (s *RedisStore) Take(ctx context.Context, token string) ([]byte, error) {
	payload, err := s.client.GetDel(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("RedisStore.Take failed", "error", err, "kind", KindOf(token))
		return nil, fmt.Errorf("failed to load interaction context: %w", err)
	}
	return payload, nil
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
