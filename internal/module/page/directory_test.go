package page

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-tktt/go-scraper/internal/domain"
)

func testDirectory(t *testing.T, d Directory) {
	ctx := context.Background()

	_, err := d.ActiveTab(ctx)
	assert.ErrorIs(t, err, ErrNoActiveTab)

	first, err := d.NextID(ctx)
	require.NoError(t, err)
	second, err := d.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PageID(1), first)
	assert.Equal(t, domain.PageID(2), second)

	require.NoError(t, d.SetActive(ctx, Tab{ID: second, URL: "https://b.test"}))
	tab, err := d.ActiveTab(ctx)
	require.NoError(t, err)
	assert.Equal(t, Tab{ID: 2, URL: "https://b.test"}, tab)
}

func TestMemoryDirectory(t *testing.T) {
	testDirectory(t, NewMemoryDirectory())
}

func TestRedisDirectory(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	testDirectory(t, NewRedisDirectory(client, ""))

	// a second process sees the same counter and active tab
	other := NewRedisDirectory(client, "scrape:page")
	id, err := other.NextID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PageID(3), id)

	tab, err := other.ActiveTab(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PageID(2), tab.ID)
}
