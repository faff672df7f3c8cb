package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-tktt/go-scraper/internal/domain"
)

func snapshotAt(ms int64, text string) *domain.StoredSnapshot {
	res := &domain.ExtractionResult{
		Columns:    domain.ModeText.Columns(),
		Rows:       []map[string]string{{domain.ColumnElementText: text}},
		MatchCount: 1,
	}
	return domain.NewSnapshot(res, "https://example.test/", time.UnixMilli(ms))
}

// runStoreContract checks behavior every backend shares
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Clear(ctx)
	require.NoError(t, err)

	later := snapshotAt(1700000002000, "second")
	earlier := snapshotAt(1700000001000, "first")

	key, err := s.Save(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, "scrape_2023-11-14T22:13:22.000Z", key)

	_, err = s.Save(ctx, earlier)
	require.NoError(t, err)

	_, err = s.Save(ctx, snapshotAt(1700000002000, "overwrite"))
	assert.ErrorIs(t, err, ErrExists)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Rows[0][domain.ColumnElementText])
	assert.Equal(t, "https://example.test/", got.SourceURL)
	assert.Equal(t, 1, got.MatchCount)

	_, err = s.Get(ctx, "scrape_missing")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].Rows[0][domain.ColumnElementText])
	assert.Equal(t, "second", list[1].Rows[0][domain.ColumnElementText])

	n, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_IsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	snap := snapshotAt(1700000000000, "original")
	key, err := s.Save(ctx, snap)
	require.NoError(t, err)

	snap.Rows[0][domain.ColumnElementText] = "mutated"

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Rows[0][domain.ColumnElementText])

	got.Rows[0][domain.ColumnElementText] = "mutated again"
	again, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Rows[0][domain.ColumnElementText])
}

// REDIS_ADDR points the test at a real server; otherwise it runs in-process
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	runStoreContract(t, NewRedisStore(client, "scrape:test:"+t.Name()))
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL not set")
	}
	s, err := NewPostgresStore(context.Background(), url, "scrape_snapshots_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	runStoreContract(t, s)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(context.Background(), Options{Backend: BackendRedis})
	assert.Error(t, err)

	_, err = Open(context.Background(), Options{Backend: "sqlite"})
	assert.Error(t, err)
}
