package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by Open
const (
	BackendMemory        = "memory"
	BackendRedis         = "redis"
	BackendPostgres      = "postgres"
	BackendElasticsearch = "elasticsearch"
)

// Options selects and configures a backend. Only the fields of the chosen
// backend are read.
type Options struct {
	Backend string

	Redis       *redis.Client
	RedisPrefix string

	PostgresURL   string
	PostgresTable string

	ESAddresses []string
	ESIndex     string
}

// Open creates the configured store
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis backend needs a client")
		}
		return NewRedisStore(opts.Redis, opts.RedisPrefix), nil
	case BackendPostgres:
		return NewPostgresStore(ctx, opts.PostgresURL, opts.PostgresTable)
	case BackendElasticsearch:
		s, err := NewElasticsearchStore(opts.ESAddresses, opts.ESIndex)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("ensure index: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown snapshot backend %q", opts.Backend)
}
