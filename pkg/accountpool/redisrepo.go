package accountpool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRepository persists the account pool as one JSON-encoded value under
// a single key, so multiple proxy replicas can share pool state. Enrichment
// dependency: no teacher package talks to Redis, adopted from the rest of
// the retrieval pack.
type RedisRepository struct {
	client *redis.Client
	key    string
}

func NewRedisRepository(client *redis.Client, key string) *RedisRepository {
	if key == "" {
		key = "cwbridge:account_pool"
	}
	return &RedisRepository{client: client, key: key}
}

func (r *RedisRepository) Load(ctx context.Context) ([]*Account, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	var accounts []*Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("parse account pool from redis: %w", err)
	}
	return accounts, nil
}

func (r *RedisRepository) Save(ctx context.Context, accounts []*Account) error {
	encoded, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("marshal account pool: %w", err)
	}
	if err := r.client.Set(ctx, r.key, encoded, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}
