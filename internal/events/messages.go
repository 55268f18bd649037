package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"example.com/fincap/backend/internal/notifications"
)

// Message is the broker envelope for a user-scoped ledger event.
type Message struct {
	UserID    uuid.UUID       `json:"user_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage wraps a notification event for the broker.
func NewMessage(userID uuid.UUID, event notifications.Event) (*Message, error) {
	msg := &Message{
		UserID:    userID,
		Type:      event.Type,
		Timestamp: event.Timestamp,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if event.Data != nil {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}
	return msg, nil
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON decodes a message delivered by the broker.
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
