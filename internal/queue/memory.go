package queue

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryBus connects contexts living in one process
type MemoryBus struct {
	mu        sync.RWMutex
	listeners map[string]*memoryListener
	logger    *slog.Logger
}

type memoryListener struct {
	bus     *MemoryBus
	channel string
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewMemoryBus creates an in-process bus
func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBus{
		listeners: make(map[string]*memoryListener),
		logger:    logger,
	}
}

func (b *MemoryBus) Request(ctx context.Context, channel string, msg *Message, out any) error {
	b.mu.RLock()
	l, ok := b.listeners[channel]
	b.mu.RUnlock()
	if !ok {
		return ErrNoReceiver
	}

	in, err := copyMessage(msg)
	if err != nil {
		return err
	}

	replyCh := make(chan envelope, 1)
	go dispatch(l.ctx, l.handler, in, func(e envelope) { replyCh <- e }, b.logger)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-replyCh:
		return e.decode(out)
	}
}

func (b *MemoryBus) Listen(ctx context.Context, channel string, h Handler) (Listener, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.listeners[channel]; exists {
		return nil, ErrListening
	}

	lctx, cancel := context.WithCancel(ctx)
	l := &memoryListener{
		bus:     b,
		channel: channel,
		handler: h,
		ctx:     lctx,
		cancel:  cancel,
	}
	b.listeners[channel] = l

	go func() {
		<-lctx.Done()
		b.remove(l)
	}()

	return l, nil
}

func (b *MemoryBus) remove(l *memoryListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.listeners[l.channel]; ok && cur == l {
		delete(b.listeners, l.channel)
	}
}

func (l *memoryListener) Close() error {
	l.bus.remove(l)
	l.cancel()
	return nil
}
