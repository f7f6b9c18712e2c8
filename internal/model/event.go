package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType classifies a server-pushed notification.
type EventType string

const (
	EventDueSoon  EventType = "due_soon"
	EventOverdue  EventType = "overdue"
	EventReminder EventType = "reminder"
	EventSystem   EventType = "system"
)

// HeartbeatMessage is the message carried by the system event the server
// emits to keep an idle stream alive.
const HeartbeatMessage = "heartbeat"

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventDueSoon, EventOverdue, EventReminder, EventSystem:
		return true
	}
	return false
}

// NotificationEvent is a single notification pushed by the server. It is
// immutable once decoded and never persisted.
type NotificationEvent struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	TodoID    string    `json:"todoId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsHeartbeat reports whether e is a connectivity control message rather
// than something meant for the user.
func (e NotificationEvent) IsHeartbeat() bool {
	return e.Type == EventSystem && e.Message == HeartbeatMessage
}

// DecodeEvent parses a raw stream payload into a NotificationEvent.
func DecodeEvent(data []byte) (NotificationEvent, error) {
	var ev NotificationEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return NotificationEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if !ev.Type.Valid() {
		return NotificationEvent{}, fmt.Errorf("decode event: unknown type %q", ev.Type)
	}
	if ev.Message == "" {
		return NotificationEvent{}, errors.New("decode event: empty message")
	}
	return ev, nil
}
