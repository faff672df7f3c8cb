package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type redisListener struct {
	bus     *RedisBus
	channel string
	token   string
	handler Handler
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

// Listen claims the channel's presence key and starts consuming its
// request list. Each message is handled on its own goroutine.
func (b *RedisBus) Listen(ctx context.Context, channel string, h Handler) (Listener, error) {
	token := uuid.NewString()
	ok, err := b.client.SetNX(ctx, b.liveKey(channel), token, b.presenceTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil, ErrListening
	}

	lctx, cancel := context.WithCancel(ctx)
	l := &redisListener{
		bus:     b,
		channel: channel,
		token:   token,
		handler: h,
		cancel:  cancel,
	}

	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		l.heartbeat(lctx)
	}()
	go func() {
		defer l.wg.Done()
		l.consume(lctx)
	}()

	b.logger.Info("listening", "channel", channel)
	return l, nil
}

func (l *redisListener) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(l.bus.presenceTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.bus.client.Expire(ctx, l.bus.liveKey(l.channel), l.bus.presenceTTL).Err(); err != nil && ctx.Err() == nil {
				l.bus.logger.Warn("refresh presence", "channel", l.channel, "error", err)
			}
		}
	}
}

func (l *redisListener) consume(ctx context.Context) {
	key := l.bus.requestKey(l.channel)
	var handlers sync.WaitGroup
	defer handlers.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := l.bus.client.BRPop(ctx, l.bus.pollTimeout, key).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			l.bus.logger.Error("consume", "channel", l.channel, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var req request
		if err := json.Unmarshal([]byte(result[1]), &req); err != nil || req.Message == nil {
			l.bus.logger.Warn("skip malformed request", "channel", l.channel, "error", err)
			continue
		}

		handlers.Add(1)
		go func() {
			defer handlers.Done()
			dispatch(ctx, l.handler, req.Message, func(e envelope) {
				l.bus.reply(req.ReplyTo, e)
			}, l.bus.logger)
		}()
	}
}

// Close releases the channel and answers requests still queued for it with
// ErrPortClosed so their senders do not wait forever.
func (l *redisListener) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		l.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if cur, getErr := l.bus.client.Get(ctx, l.bus.liveKey(l.channel)).Result(); getErr == nil && cur == l.token {
			if delErr := l.bus.client.Del(ctx, l.bus.liveKey(l.channel)).Err(); delErr != nil {
				err = fmt.Errorf("del presence: %w", delErr)
			}
		}
		l.drain(ctx)
	})
	return err
}

func (l *redisListener) drain(ctx context.Context) {
	key := l.bus.requestKey(l.channel)
	for {
		data, err := l.bus.client.RPop(ctx, key).Result()
		if err != nil {
			if err != redis.Nil {
				l.bus.logger.Warn("drain", "channel", l.channel, "error", err)
			}
			return
		}
		var req request
		if err := json.Unmarshal([]byte(data), &req); err != nil {
			continue
		}
		l.bus.reply(req.ReplyTo, envelope{Error: ErrPortClosed.Error()})
	}
}
