package models

import (
	"strings"
	"time"
)

// TempIDPrefix marks client-generated ids awaiting server confirmation.
const TempIDPrefix = "temp-"

// MessageStatus tracks delivery of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
)

// Valid reports whether s is a known status.
func (s MessageStatus) Valid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead:
		return true
	}
	return false
}

// Direction is derived locally by comparing the sender to the session user.
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
)

// Sender describes the author of a message.
type Sender struct {
	ID   ID     `json:"id"`
	Name string `json:"name,omitempty"`
}

// Message represents a chat message.
type Message struct {
	ID        ID            `json:"id"`
	RoomID    ID            `json:"roomId,omitempty"`
	Content   string        `json:"content"`
	Status    MessageStatus `json:"status"`
	Sender    Sender        `json:"sender"`
	CreatedAt time.Time     `json:"createdAt"`
	Direction Direction     `json:"-"`
}

// Temporary reports whether the message still carries a client-generated id.
func (m Message) Temporary() bool {
	return strings.HasPrefix(string(m.ID), TempIDPrefix)
}

// TypingUser is an entry in a room's typing set.
type TypingUser struct {
	UserID   ID     `json:"userId"`
	UserName string `json:"userName,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}
