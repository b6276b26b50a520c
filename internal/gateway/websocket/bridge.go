package websocket

import (
	"context"

	"go.uber.org/zap"

	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/events"
	"github.com/maestro/maestro/internal/events/bus"
	"github.com/maestro/maestro/pkg/ws"
)

// Bridge subscribes to the broadcast topics and relays every event to the
// hub as a wire frame.
type Bridge struct {
	hub    *Hub
	bus    bus.EventBus
	subs   []bus.Subscription
	logger *logger.Logger
}

// NewBridge creates an unstarted bridge.
func NewBridge(hub *Hub, eventBus bus.EventBus, log *logger.Logger) *Bridge {
	return &Bridge{
		hub:    hub,
		bus:    eventBus,
		logger: log.WithFields(zap.String("component", "ws-bridge")),
	}
}

// Start subscribes to every broadcast topic.
func (b *Bridge) Start() error {
	for _, topic := range events.BroadcastTopics {
		sub, err := b.bus.Subscribe(topic, b.relay)
		if err != nil {
			b.Stop()
			return err
		}
		b.subs = append(b.subs, sub)
	}
	b.logger.Info("websocket bridge started", zap.Int("topics", len(events.BroadcastTopics)))
	return nil
}

// Stop drops all subscriptions.
func (b *Bridge) Stop() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
}

func (b *Bridge) relay(ctx context.Context, event *bus.Event) error {
	b.hub.Broadcast(ws.NewEventFrame(event.Topic, event.Data, event.Timestamp))
	return nil
}
