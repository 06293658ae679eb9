package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs Store with a shared Redis instance, for multi-process
// deployments that need rate-limit/circuit-breaker state consistent across
// more than one crawler process.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr and verifies connectivity with a Ping.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return val, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return s.client.IncrBy(ctx, key, delta).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

// Pipeline batches ops into one MULTI/EXEC transaction.
func (s *RedisStore) Pipeline(ctx context.Context, ops []PipelineOp) error {
	pipe := s.client.TxPipeline()
	for _, op := range ops {
		switch op.Kind {
		case "set":
			pipe.Set(ctx, op.Key, op.Value, op.TTL)
		case "increment":
			pipe.IncrBy(ctx, op.Key, op.Delta)
		case "expire":
			pipe.Expire(ctx, op.Key, op.TTL)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)

// NewWithFallback attempts NewRedisStore and, on failure, returns a
// MemoryStore instead of an error — spec.md §6's requirement that shared
// state must degrade to in-memory rather than crash the process.
func NewWithFallback(ctx context.Context, addr, password string, db int) Store {
	rs, err := NewRedisStore(ctx, addr, password, db)
	if err != nil {
		return NewMemoryStore()
	}
	return rs
}
