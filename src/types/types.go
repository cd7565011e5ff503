package types

import (
	"encoding/json"
	"time"
)

// Message is a payload delivered by the broker to a subscription.
type Message struct {
	Destination    string            `json:"destination"`
	SubscriptionID string            `json:"subscription_id"`
	MessageID      string            `json:"message_id,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           []byte            `json:"-"`
	// Payload is Body decoded as JSON, nil for an empty body.
	Payload    any       `json:"payload,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Decode unmarshals the raw body into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Body, v)
}

// MessageHandler handles messages received on a destination.
type MessageHandler func(msg *Message)

// ConnectedInfo describes an established broker session.
type ConnectedInfo struct {
	Version     string            `json:"version"`
	Server      string            `json:"server,omitempty"`
	Session     string            `json:"session,omitempty"`
	Identity    string            `json:"identity"`
	Headers     map[string]string `json:"headers,omitempty"`
	ConnectedAt time.Time         `json:"connected_at"`
}

// SubscriptionInfo holds metadata about a live subscription.
type SubscriptionInfo struct {
	ID           string    `json:"id"`
	Destination  string    `json:"destination"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

// Conn abstracts a message-oriented WebSocket connection for testability.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}
