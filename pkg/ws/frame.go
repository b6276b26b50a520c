// Package ws defines the WebSocket wire frames exchanged between the
// Maestro server and its clients.
package ws

import "time"

// Frame types.
const (
	TypeEvent = "event"
	TypePing  = "ping"
	TypePong  = "pong"
)

// Frame is the envelope for every server-to-client message. Event frames
// carry the bus topic in Event and the topic payload in Data.
type Frame struct {
	Type      string      `json:"type"`
	Event     string      `json:"event,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp,omitempty"`
}

// NewEventFrame wraps a bus event for broadcast.
func NewEventFrame(topic string, data interface{}, ts time.Time) *Frame {
	return &Frame{
		Type:      TypeEvent,
		Event:     topic,
		Data:      data,
		Timestamp: ts,
	}
}

// Pong is the reply to a client ping.
func Pong() *Frame {
	return &Frame{Type: TypePong, Timestamp: time.Now().UTC()}
}

// ClientFrame is what clients may send. Anything but a ping is ignored.
type ClientFrame struct {
	Type string `json:"type"`
}
