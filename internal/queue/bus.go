// Package queue carries request/reply messages between the panel, the
// coordinator and page contexts. Every request gets at most one reply.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/project-tktt/go-scraper/internal/domain"
)

// CoordinatorChannel is where the relay listens
const CoordinatorChannel = "coordinator"

// PageChannel is where the page with the given id listens
func PageChannel(id domain.PageID) string {
	return fmt.Sprintf("page:%d", id)
}

var (
	// ErrNoReceiver means nothing listens on the target channel
	ErrNoReceiver = errors.New("Could not establish connection. Receiving end does not exist.")
	// ErrPortClosed means the handler finished (or went away) without replying
	ErrPortClosed = errors.New("The message port closed before a response was received.")
	// ErrAlreadyResponded is returned on a second Respond call
	ErrAlreadyResponded = errors.New("response already sent")
	// ErrListening is returned when a channel already has a listener
	ErrListening = errors.New("channel already has a listener")
)

// Message is the envelope for both SCRAPE_CONTENT and EXTRACT_CONTENT
type Message struct {
	Type           domain.MessageType `json:"type"`
	Selector       string             `json:"selector,omitempty"`
	ExtractionType domain.Mode        `json:"extractionType,omitempty"`
	TabID          domain.PageID      `json:"tabId,omitempty"`
}

// Responder resolves one request. Only the first Respond call is delivered.
type Responder interface {
	Respond(v any) error
}

// Handler processes one message. Returning true keeps the response channel
// open so Respond may be called later from another goroutine; returning
// false without having responded closes it and the caller gets ErrPortClosed.
type Handler interface {
	Handle(ctx context.Context, msg *Message, r Responder) (pending bool)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, msg *Message, r Responder) bool

func (f HandlerFunc) Handle(ctx context.Context, msg *Message, r Responder) bool {
	return f(ctx, msg, r)
}

// Listener is an active registration on a channel
type Listener interface {
	Close() error
}

// Bus sends requests and registers listeners
type Bus interface {
	// Request sends msg to channel and decodes the single reply into out.
	// There is no timeout; only ctx ends the wait.
	Request(ctx context.Context, channel string, msg *Message, out any) error
	// Listen registers h on channel until the listener is closed or ctx ends
	Listen(ctx context.Context, channel string, h Handler) (Listener, error)
}

// envelope is what travels back to the requester
type envelope struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (e envelope) decode(out any) error {
	if e.Error != "" {
		switch e.Error {
		case ErrPortClosed.Error():
			return ErrPortClosed
		case ErrNoReceiver.Error():
			return ErrNoReceiver
		}
		return errors.New(e.Error)
	}
	if out == nil || len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("unmarshal reply: %w", err)
	}
	return nil
}

type responder struct {
	once    sync.Once
	done    chan struct{}
	deliver func(envelope)
}

func newResponder(deliver func(envelope)) *responder {
	return &responder{done: make(chan struct{}), deliver: deliver}
}

func (r *responder) Respond(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	sent := false
	r.once.Do(func() {
		sent = true
		r.deliver(envelope{Payload: data})
		close(r.done)
	})
	if !sent {
		return ErrAlreadyResponded
	}
	return nil
}

func (r *responder) close() {
	r.once.Do(func() {
		r.deliver(envelope{Error: ErrPortClosed.Error()})
		close(r.done)
	})
}

// dispatch runs h for one message and guarantees the requester is released
// once: by the handler's reply, by the port closing when the handler is not
// pending, or by ctx ending while it is.
func dispatch(ctx context.Context, h Handler, msg *Message, deliver func(envelope), logger *slog.Logger) {
	r := newResponder(deliver)

	pending := func() (pending bool) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic", "type", msg.Type, "panic", rec)
				pending = false
			}
		}()
		return h.Handle(ctx, msg, r)
	}()

	if !pending {
		r.close()
		return
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		r.close()
	}
}

// copyMessage round-trips msg through JSON so the receiver never shares
// memory with the sender.
func copyMessage(msg *Message) (*Message, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	var out Message
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &out, nil
}
