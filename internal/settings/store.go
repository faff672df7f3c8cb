package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Key is the name settings are stored under
const Key = "aiSettings"

// Store reads and writes the raw stored settings document
type Store interface {
	// Read returns the stored document, or nil when nothing is stored
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// Load returns stored settings laid over the defaults, so fields missing
// from the stored document keep their default values.
func Load(ctx context.Context, st Store) (Settings, error) {
	s := Defaults()
	data, err := st.Read(ctx)
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if data == nil {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Defaults(), fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

// Save validates s and stores it
func Save(ctx context.Context, st Store, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := st.Write(ctx, data); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// MemoryStore keeps the document in memory
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Read(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryStore) Write(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

// RedisStore keeps the document in one key under prefix
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store at "<prefix>:aiSettings" (default prefix
// "scrape:sync")
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "scrape:sync"
	}
	return &RedisStore{client: client, key: prefix + ":" + Key}
}

func (r *RedisStore) Read(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (r *RedisStore) Write(ctx context.Context, data []byte) error {
	return r.client.Set(ctx, r.key, data, 0).Err()
}
