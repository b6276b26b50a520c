// Package bus provides event bus abstractions for Maestro.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event represents a message on the event bus
type Event struct {
	ID        string      `json:"id"`
	Topic     string      `json:"topic"`
	Source    string      `json:"source"` // Service that produced the event
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent creates a new event with a UUID and current timestamp
func NewEvent(topic, source string, data interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Topic:     topic,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler is a function that handles an event
type EventHandler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus interface for event bus operations.
//
// The in-process implementation guarantees that Publish delivers to every
// current subscriber, in subscription order, before returning, and that
// delivery order within a topic equals publish order. The NATS-backed
// implementation relaxes this to at-least-once asynchronous delivery for
// multi-process deployments.
type EventBus interface {
	// Publish sends an event to a topic
	Publish(ctx context.Context, topic string, event *Event) error

	// Subscribe registers a handler for a topic. Topic "*" receives every event.
	Subscribe(topic string, handler EventHandler) (Subscription, error)

	// Close closes the bus; further publishes fail
	Close()

	// IsConnected returns connection status
	IsConnected() bool
}
