package domain

import (
	"time"
)

// OutboundMessage is a client request to send a chat message through a
// bound bot runtime.
type OutboundMessage struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// BotStatus is the API projection of one authenticated session's binding.
type BotStatus struct {
	SessionKey string `json:"session"`
	BotKey     string `json:"bot"`
	Alive      bool   `json:"alive"`
}
