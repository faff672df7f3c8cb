package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SliceSource yields a fixed list of URLs once
type SliceSource struct {
	mu   sync.Mutex
	urls []string
}

func NewSliceSource(urls ...string) *SliceSource {
	return &SliceSource{urls: append([]string(nil), urls...)}
}

func (s *SliceSource) Next(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.urls) == 0 {
		return "", ErrDone
	}
	url := s.urls[0]
	s.urls = s.urls[1:]
	return url, nil
}

// RedisSource pops URLs from a Redis list. It never runs dry; an empty
// list just makes Next wait up to the timeout.
type RedisSource struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisSource creates a source reading key (default "scrape:page:open")
func NewRedisSource(client *redis.Client, key string, timeout time.Duration) *RedisSource {
	if key == "" {
		key = "scrape:page:open"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RedisSource{client: client, key: key, timeout: timeout}
}

// Push enqueues URLs to be opened by whichever page host is listening
func (s *RedisSource) Push(ctx context.Context, urls ...string) error {
	if len(urls) == 0 {
		return nil
	}
	vals := make([]any, len(urls))
	for i, u := range urls {
		vals[i] = u
	}
	if err := s.client.LPush(ctx, s.key, vals...).Err(); err != nil {
		return fmt.Errorf("push urls: %w", err)
	}
	return nil
}

func (s *RedisSource) Next(ctx context.Context) (string, error) {
	result, err := s.client.BRPop(ctx, s.timeout, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("brpop: %w", err)
	}
	// BRPOP returns [key, value]
	if len(result) < 2 {
		return "", nil
	}
	return result[1], nil
}
