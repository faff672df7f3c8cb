package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/project-tktt/go-scraper/internal/domain"
)

// ErrNoActiveTab is returned when no page has been opened yet
var ErrNoActiveTab = errors.New("No active tab found")

// Tab is the active page as seen by the panel
type Tab struct {
	ID  domain.PageID `json:"id"`
	URL string        `json:"url"`
}

// Directory allocates page ids and remembers the active page
type Directory interface {
	NextID(ctx context.Context) (domain.PageID, error)
	SetActive(ctx context.Context, tab Tab) error
	ActiveTab(ctx context.Context) (Tab, error)
}

// MemoryDirectory serves a single process
type MemoryDirectory struct {
	mu     sync.Mutex
	last   domain.PageID
	active Tab
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{}
}

func (d *MemoryDirectory) NextID(ctx context.Context) (domain.PageID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last++
	return d.last, nil
}

func (d *MemoryDirectory) SetActive(ctx context.Context, tab Tab) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = tab
	return nil
}

func (d *MemoryDirectory) ActiveTab(ctx context.Context) (Tab, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active.ID == 0 {
		return Tab{}, ErrNoActiveTab
	}
	return d.active, nil
}

// RedisDirectory shares ids and the active page between processes
type RedisDirectory struct {
	client *redis.Client
	prefix string
}

func NewRedisDirectory(client *redis.Client, prefix string) *RedisDirectory {
	if prefix == "" {
		prefix = "scrape:page"
	}
	return &RedisDirectory{client: client, prefix: prefix}
}

func (d *RedisDirectory) NextID(ctx context.Context) (domain.PageID, error) {
	id, err := d.client.Incr(ctx, d.prefix+":seq").Result()
	if err != nil {
		return 0, fmt.Errorf("incr: %w", err)
	}
	return domain.PageID(id), nil
}

func (d *RedisDirectory) SetActive(ctx context.Context, tab Tab) error {
	data, err := json.Marshal(tab)
	if err != nil {
		return fmt.Errorf("marshal tab: %w", err)
	}
	if err := d.client.Set(ctx, d.prefix+":active", data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (d *RedisDirectory) ActiveTab(ctx context.Context) (Tab, error) {
	data, err := d.client.Get(ctx, d.prefix+":active").Bytes()
	if err == redis.Nil {
		return Tab{}, ErrNoActiveTab
	}
	if err != nil {
		return Tab{}, fmt.Errorf("redis get: %w", err)
	}

	var tab Tab
	if err := json.Unmarshal(data, &tab); err != nil {
		return Tab{}, fmt.Errorf("unmarshal tab: %w", err)
	}
	if tab.ID == 0 {
		return Tab{}, ErrNoActiveTab
	}
	return tab, nil
}
