// Package bus provides the bounded, ordered event bus that decouples
// connectors from the agent loop.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kestrelworks/switchboard/internal/domain"
	"github.com/kestrelworks/switchboard/internal/logging"
)

// ErrBusFull is returned by the non-blocking publish variants when the
// target queue is at capacity. It is the load-shedding signal for
// producers that cannot afford to block.
var ErrBusFull = errors.New("bus: queue full")

// DefaultCapacity is used when a queue capacity is left unset.
const DefaultCapacity = 100

// Config sizes the two queues.
type Config struct {
	InboundCapacity  int
	OutboundCapacity int
}

// Bus carries inbound messages toward the agent loop and outbound messages
// toward connector subscribers. Both queues are FIFO with a fixed capacity;
// a full queue blocks publishers (or fails the Try variants) instead of
// growing without bound.
type Bus struct {
	inbound  chan domain.InboundMessage
	outbound chan domain.OutboundMessage

	mu          sync.RWMutex
	subscribers map[string][]func(domain.OutboundMessage)

	log *logging.Logger
}

// New creates a bus. Non-positive capacities fall back to DefaultCapacity.
func New(cfg Config, log *logging.Logger) *Bus {
	if cfg.InboundCapacity <= 0 {
		cfg.InboundCapacity = DefaultCapacity
	}
	if cfg.OutboundCapacity <= 0 {
		cfg.OutboundCapacity = DefaultCapacity
	}
	return &Bus{
		inbound:     make(chan domain.InboundMessage, cfg.InboundCapacity),
		outbound:    make(chan domain.OutboundMessage, cfg.OutboundCapacity),
		subscribers: make(map[string][]func(domain.OutboundMessage)),
		log:         log.Sub("bus"),
	}
}

// PublishInbound enqueues a message for the agent loop, blocking while the
// queue is full. It returns ctx.Err() if the context ends first.
func (b *Bus) PublishInbound(ctx context.Context, msg domain.InboundMessage) error {
	select {
	case b.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublishInbound enqueues without blocking; a full queue yields ErrBusFull.
func (b *Bus) TryPublishInbound(msg domain.InboundMessage) error {
	select {
	case b.inbound <- msg:
		return nil
	default:
		return ErrBusFull
	}
}

// PublishOutbound enqueues a reply for dispatch, blocking while the queue
// is full. It returns ctx.Err() if the context ends first.
func (b *Bus) PublishOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	select {
	case b.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublishOutbound enqueues without blocking; a full queue yields ErrBusFull.
func (b *Bus) TryPublishOutbound(msg domain.OutboundMessage) error {
	select {
	case b.outbound <- msg:
		return nil
	default:
		return ErrBusFull
	}
}

// ConsumeInbound blocks until a message is available or ctx ends.
func (b *Bus) ConsumeInbound(ctx context.Context) (domain.InboundMessage, error) {
	select {
	case msg := <-b.inbound:
		return msg, nil
	case <-ctx.Done():
		return domain.InboundMessage{}, ctx.Err()
	}
}

// ConsumeOutbound blocks until a message is available or ctx ends.
// Normal deployments run DispatchOutbound instead; this exists for callers
// that want to drain the outbound queue themselves (tests, the chat CLI).
func (b *Bus) ConsumeOutbound(ctx context.Context) (domain.OutboundMessage, error) {
	select {
	case msg := <-b.outbound:
		return msg, nil
	case <-ctx.Done():
		return domain.OutboundMessage{}, ctx.Err()
	}
}

// Subscribe registers a callback for outbound messages addressed to the
// given connector. Precondition: subscriptions are wired during startup,
// before DispatchOutbound runs; the bus does not support changing the
// subscriber set concurrently with dispatch.
func (b *Bus) Subscribe(connectorID string, fn func(domain.OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[connectorID] = append(b.subscribers[connectorID], fn)
	b.log.Debug().Str("connector", connectorID).Msg("subscriber registered")
}

// DispatchOutbound drains the outbound queue and fans each message out to
// the connector's subscribers in registration order. A subscriber that
// panics is logged and skipped; it never blocks delivery to the rest.
// Blocks until ctx is cancelled.
func (b *Bus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbound:
			b.mu.RLock()
			subs := b.subscribers[msg.Connector]
			b.mu.RUnlock()

			if len(subs) == 0 {
				b.log.Warn().
					Str("connector", msg.Connector).
					Str("conversation", msg.ConversationID).
					Msg("no subscriber for outbound message")
				continue
			}
			for _, fn := range subs {
				b.deliver(fn, msg)
			}
		}
	}
}

func (b *Bus) deliver(fn func(domain.OutboundMessage), msg domain.OutboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("connector", msg.Connector).
				Str("panic", fmt.Sprint(r)).
				Msg("subscriber panicked, skipping")
		}
	}()
	fn(msg)
}

// InboundDepth returns the number of queued inbound messages.
func (b *Bus) InboundDepth() int { return len(b.inbound) }

// OutboundDepth returns the number of queued outbound messages.
func (b *Bus) OutboundDepth() int { return len(b.outbound) }
