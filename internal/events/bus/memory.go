package bus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/maestro/maestro/internal/common/logger"
)

// TopicWildcard subscribes a handler to every topic on the bus.
const TopicWildcard = "*"

// MemoryEventBus implements EventBus in process.
//
// Delivery is synchronous: Publish invokes every matching handler on the
// caller's goroutine, in subscription order, before returning. A handler
// error or panic is logged and does not stop later handlers. Handlers that
// may block hand work to their own queue (the WebSocket bridge does this
// per client).
type MemoryEventBus struct {
	subscriptions map[string][]*memorySubscription
	mu            sync.RWMutex
	logger        *logger.Logger
	closed        bool
}

// memorySubscription represents an in-memory subscription
type memorySubscription struct {
	bus     *MemoryEventBus
	topic   string
	handler EventHandler
	active  bool
	mu      sync.Mutex
}

// Unsubscribe removes the subscription
func (s *memorySubscription) Unsubscribe() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if subs, ok := s.bus.subscriptions[s.topic]; ok {
		for i, sub := range subs {
			if sub == s {
				s.bus.subscriptions[s.topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return nil
}

// IsValid returns whether the subscription is still active
func (s *memorySubscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// NewMemoryEventBus creates a new in-memory event bus
func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	return &MemoryEventBus{
		subscriptions: make(map[string][]*memorySubscription),
		logger:        log,
	}
}

// Publish delivers an event to all current subscribers of the topic (and of
// the wildcard topic) before returning.
func (b *MemoryEventBus) Publish(ctx context.Context, topic string, event *Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is closed")
	}
	// Snapshot under the read lock so handlers can subscribe/unsubscribe
	// (the mail long-poll waiter unsubscribes itself on resolution).
	subs := make([]*memorySubscription, 0, len(b.subscriptions[topic])+len(b.subscriptions[TopicWildcard]))
	subs = append(subs, b.subscriptions[topic]...)
	subs = append(subs, b.subscriptions[TopicWildcard]...)
	b.mu.RUnlock()

	if event.Topic == "" {
		event.Topic = topic
	}

	for _, sub := range subs {
		sub.mu.Lock()
		active := sub.active
		sub.mu.Unlock()
		if !active {
			continue
		}
		b.invoke(ctx, sub, topic, event)
	}

	b.logger.Debug("published event",
		zap.String("topic", topic),
		zap.String("event_id", event.ID))

	return nil
}

// invoke runs one handler, isolating panics so a failing subscriber cannot
// break fan-out to the rest.
func (b *MemoryEventBus) invoke(ctx context.Context, sub *memorySubscription, topic string, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", topic),
				zap.Any("panic", r))
		}
	}()
	if err := sub.handler(ctx, event); err != nil {
		b.logger.Error("event handler error",
			zap.String("topic", topic),
			zap.Error(err))
	}
}

// Subscribe registers a handler for a topic
func (b *MemoryEventBus) Subscribe(topic string, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	sub := &memorySubscription{
		bus:     b,
		topic:   topic,
		handler: handler,
		active:  true,
	}
	b.subscriptions[topic] = append(b.subscriptions[topic], sub)

	b.logger.Debug("subscribed to topic", zap.String("topic", topic))
	return sub, nil
}

// Close closes the event bus
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.mu.Lock()
			sub.active = false
			sub.mu.Unlock()
		}
	}
	b.subscriptions = make(map[string][]*memorySubscription)

	b.logger.Info("memory event bus closed")
}

// IsConnected returns true while the bus is open
func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}
