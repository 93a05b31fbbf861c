// Package domain defines the wire-format records exchanged with API clients.
package domain

import (
	"time"
)

// EventType categorizes chat events delivered to clients.
type EventType string

const (
	// EventTypeMessage is an inbound chat message.
	EventTypeMessage EventType = "message"
	// EventTypeReceipt is a delivery/read receipt for a sent message.
	EventTypeReceipt EventType = "receipt"
	// EventTypePresence is a contact presence change.
	EventTypePresence EventType = "presence"
	// EventTypeGroup is a group membership or subject change.
	EventTypeGroup EventType = "group"
)

// Event is the wire-format record of a single chat event.
//
// Events are produced by the bot runtime, translated once, and then either
// buffered in a session's unread queue (pull-style clients) or written
// straight to an open stream (push-style clients).
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	BotKey    string    `json:"bot"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Body      string    `json:"body,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
