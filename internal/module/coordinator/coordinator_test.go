package coordinator

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-tktt/go-scraper/internal/domain"
	"github.com/project-tktt/go-scraper/internal/queue"
)

func setup(t *testing.T) *queue.MemoryBus {
	t.Helper()
	bus := queue.NewMemoryBus(nil)
	_, err := bus.Listen(context.Background(), queue.CoordinatorChannel, New(bus, nil))
	require.NoError(t, err)
	return bus
}

func scrape(t *testing.T, bus queue.Bus, msg *queue.Message) domain.ScrapeResponse {
	t.Helper()
	var resp domain.ScrapeResponse
	require.NoError(t, bus.Request(context.Background(), queue.CoordinatorChannel, msg, &resp))
	return resp
}

func TestCoordinator_MissingTabID(t *testing.T) {
	bus := setup(t)

	var contacted atomic.Bool
	_, err := bus.Listen(context.Background(), queue.PageChannel(0), queue.HandlerFunc(func(ctx context.Context, msg *queue.Message, r queue.Responder) bool {
		contacted.Store(true)
		return false
	}))
	require.NoError(t, err)

	resp := scrape(t, bus, &queue.Message{
		Type:           domain.MessageScrapeContent,
		Selector:       "h1",
		ExtractionType: domain.ModeText,
	})

	assert.False(t, resp.Success)
	assert.Equal(t, "No tab ID provided in message", resp.Error)
	assert.Nil(t, resp.Data)
	assert.False(t, contacted.Load())
}

func TestCoordinator_ForwardsAndRelays(t *testing.T) {
	bus := setup(t)

	var forwarded queue.Message
	_, err := bus.Listen(context.Background(), queue.PageChannel(5), queue.HandlerFunc(func(ctx context.Context, msg *queue.Message, r queue.Responder) bool {
		forwarded = *msg
		_ = r.Respond(&domain.ExtractionResult{
			Rows:       []map[string]string{{domain.ColumnElementText: "hi"}},
			Columns:    []string{domain.ColumnElementText},
			MatchCount: 1,
		})
		return false
	}))
	require.NoError(t, err)

	resp := scrape(t, bus, &queue.Message{
		Type:           domain.MessageScrapeContent,
		Selector:       "h1",
		ExtractionType: domain.ModeText,
		TabID:          5,
	})

	require.True(t, resp.Success, resp.Error)
	require.NotNil(t, resp.Data)
	assert.Equal(t, 1, resp.Data.MatchCount)
	assert.Equal(t, "hi", resp.Data.Rows[0][domain.ColumnElementText])

	assert.Equal(t, queue.Message{
		Type:           domain.MessageExtractContent,
		Selector:       "h1",
		ExtractionType: domain.ModeText,
	}, forwarded)
}

func TestCoordinator_UnreachablePage(t *testing.T) {
	bus := setup(t)

	resp := scrape(t, bus, &queue.Message{
		Type:     domain.MessageScrapeContent,
		Selector: "h1",
		TabID:    42,
	})

	assert.False(t, resp.Success)
	assert.Equal(t, queue.ErrNoReceiver.Error(), resp.Error)
}

func TestCoordinator_PageWithoutReply(t *testing.T) {
	bus := setup(t)
	_, err := bus.Listen(context.Background(), queue.PageChannel(9), queue.HandlerFunc(func(ctx context.Context, msg *queue.Message, r queue.Responder) bool {
		panic("extractor blew up")
	}))
	require.NoError(t, err)

	resp := scrape(t, bus, &queue.Message{Type: domain.MessageScrapeContent, Selector: "p", TabID: 9})

	assert.False(t, resp.Success)
	assert.Equal(t, queue.ErrPortClosed.Error(), resp.Error)
}

func TestCoordinator_IgnoresOtherTypes(t *testing.T) {
	bus := setup(t)

	err := bus.Request(context.Background(), queue.CoordinatorChannel, &queue.Message{
		Type: domain.MessageExtractContent,
	}, nil)
	assert.ErrorIs(t, err, queue.ErrPortClosed)
}
