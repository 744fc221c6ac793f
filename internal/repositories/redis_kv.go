package repositories

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const eventLogKeyPrefix = "eventlog:"

type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, eventLogKey(key)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key, value string) error {
	err := r.client.Set(ctx, eventLogKey(key), value, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// SetMany writes all entries inside one MULTI/EXEC block.
func (r *RedisKVStore) SetMany(ctx context.Context, values map[string]string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range values {
			pipe.Set(ctx, eventLogKey(key), value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set %d keys: %w", len(values), err)
	}
	return nil
}

// Helper: build Redis key for an event log entry
func eventLogKey(key string) string {
	return eventLogKeyPrefix + key
}
