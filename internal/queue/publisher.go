package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBus carries messages between processes over Redis lists.
//
//	<prefix>:req:<channel>   requests, LPUSH by senders, BRPOP by the listener
//	<prefix>:live:<channel>  presence key refreshed by the listener
//	<prefix>:reply:<id>      single reply for one request
type RedisBus struct {
	client      *redis.Client
	prefix      string
	pollTimeout time.Duration
	presenceTTL time.Duration
	replyTTL    time.Duration
	logger      *slog.Logger
}

// RedisBusConfig tunes the Redis transport
type RedisBusConfig struct {
	Prefix      string
	PollTimeout time.Duration
	PresenceTTL time.Duration
	ReplyTTL    time.Duration
}

// request is what a listener pops from its request list
type request struct {
	ID      string   `json:"id"`
	ReplyTo string   `json:"reply_to"`
	Message *Message `json:"message"`
}

// NewRedisBus creates a bus on top of an existing client
func NewRedisBus(client *redis.Client, cfg RedisBusConfig, logger *slog.Logger) *RedisBus {
	if cfg.Prefix == "" {
		cfg.Prefix = "scrape:bus"
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.PresenceTTL == 0 {
		cfg.PresenceTTL = 15 * time.Second
	}
	if cfg.ReplyTTL == 0 {
		cfg.ReplyTTL = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		client:      client,
		prefix:      cfg.Prefix,
		pollTimeout: cfg.PollTimeout,
		presenceTTL: cfg.PresenceTTL,
		replyTTL:    cfg.ReplyTTL,
		logger:      logger,
	}
}

// pushIfLive enqueues a request only while the channel's presence key
// exists. A listener deletes that key before draining its list, so nothing
// can be pushed after the drain.
var pushIfLive = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("LPUSH", KEYS[2], ARGV[1])
return 1
`)

// Request pushes msg onto the channel's request list and blocks until the
// reply arrives or ctx ends
func (b *RedisBus) Request(ctx context.Context, channel string, msg *Message, out any) error {
	id := uuid.NewString()
	req := request{
		ID:      id,
		ReplyTo: b.replyKey(id),
		Message: msg,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	pushed, err := pushIfLive.Run(ctx, b.client, []string{b.liveKey(channel), b.requestKey(channel)}, data).Int()
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	if pushed == 0 {
		return ErrNoReceiver
	}

	e, err := b.awaitReply(ctx, req.ReplyTo)
	if err != nil {
		return err
	}
	return e.decode(out)
}

// awaitReply uses BRPOP in a loop so a missing reply blocks without spinning
func (b *RedisBus) awaitReply(ctx context.Context, key string) (envelope, error) {
	for {
		select {
		case <-ctx.Done():
			return envelope{}, ctx.Err()
		default:
		}

		result, err := b.client.BRPop(ctx, b.pollTimeout, key).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return envelope{}, ctx.Err()
			}
			return envelope{}, fmt.Errorf("brpop: %w", err)
		}
		if len(result) < 2 {
			continue
		}

		var e envelope
		if err := json.Unmarshal([]byte(result[1]), &e); err != nil {
			return envelope{}, fmt.Errorf("unmarshal reply: %w", err)
		}
		return e, nil
	}
}

// reply pushes e to the requester and lets the list expire if nobody reads it
func (b *RedisBus) reply(key string, e envelope) {
	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("marshal reply", "key", key, "error", err)
		return
	}

	// The listener's ctx may already be gone when a late reply is sent.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := b.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.Expire(ctx, key, b.replyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		b.logger.Error("push reply", "key", key, "error", err)
	}
}

func (b *RedisBus) requestKey(channel string) string {
	return fmt.Sprintf("%s:req:%s", b.prefix, channel)
}

func (b *RedisBus) liveKey(channel string) string {
	return fmt.Sprintf("%s:live:%s", b.prefix, channel)
}

func (b *RedisBus) replyKey(id string) string {
	return fmt.Sprintf("%s:reply:%s", b.prefix, id)
}
