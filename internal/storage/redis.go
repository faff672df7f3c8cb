package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/project-tktt/go-scraper/internal/domain"
)

// RedisStore keeps each snapshot in its own key plus an index set of keys.
// All index members share score 0 so ZRANGE returns them in key order.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store under prefix (default "scrape:store")
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "scrape:store"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) itemKey(key string) string { return r.prefix + ":" + key }
func (r *RedisStore) indexKey() string          { return r.prefix + ":index" }

func (r *RedisStore) Save(ctx context.Context, s *domain.StoredSnapshot) (string, error) {
	key := s.Key()
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.itemKey(key), data, 0).Result()
	if err != nil {
		return "", fmt.Errorf("setnx snapshot: %w", err)
	}
	if !ok {
		return "", ErrExists
	}

	if err := r.client.ZAdd(ctx, r.indexKey(), redis.Z{Score: 0, Member: key}).Err(); err != nil {
		return "", fmt.Errorf("index snapshot: %w", err)
	}
	return key, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (*domain.StoredSnapshot, error) {
	data, err := r.client.Get(ctx, r.itemKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var s domain.StoredSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", key, err)
	}
	return &s, nil
}

func (r *RedisStore) List(ctx context.Context) ([]*domain.StoredSnapshot, error) {
	keys, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if len(keys) == 0 {
		return []*domain.StoredSnapshot{}, nil
	}

	itemKeys := make([]string, len(keys))
	for i, k := range keys {
		itemKeys[i] = r.itemKey(k)
	}
	vals, err := r.client.MGet(ctx, itemKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget snapshots: %w", err)
	}

	out := make([]*domain.StoredSnapshot, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// index entry without its value
			continue
		}
		var s domain.StoredSnapshot
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot %s: %w", keys[i], err)
		}
		out = append(out, &s)
	}
	return out, nil
}

func (r *RedisStore) Clear(ctx context.Context) (int, error) {
	keys, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("read index: %w", err)
	}

	del := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		del = append(del, r.itemKey(k))
	}
	del = append(del, r.indexKey())

	if err := r.client.Del(ctx, del...).Err(); err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	return len(keys), nil
}
