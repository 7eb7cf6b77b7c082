// Package events defines the frames pushed on a room topic. Each kind is its
// own type; Dispatch performs an exhaustive match over them.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"chat-client/internal/models"
)

// Kind is the wire discriminator carried in the "type" field.
type Kind string

const (
	KindMessage      Kind = "MESSAGE"
	KindTyping       Kind = "TYPING"
	KindStopTyping   Kind = "STOP_TYPING"
	KindStatusUpdate Kind = "STATUS_UPDATE"
)

// ErrUnknownEvent is returned for frames whose kind is not one of the four above.
var ErrUnknownEvent = errors.New("unknown event type")

// Event is implemented only by the types in this package.
type Event interface {
	Kind() Kind
	Room() models.ID
	sealed()
}

// Message carries a newly stored chat message.
type Message struct {
	RoomID  models.ID      `json:"roomId,omitempty"`
	Message models.Message `json:"message"`
}

// Typing announces that a user is typing. TTLMillis is how long the sender
// asserts the indicator stays valid without a refresh.
type Typing struct {
	RoomID    models.ID `json:"roomId,omitempty"`
	UserID    models.ID `json:"userId"`
	UserName  string    `json:"userName,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	TTLMillis int64     `json:"ttlMs,omitempty"`
}

// StopTyping clears a user's typing indicator.
type StopTyping struct {
	RoomID models.ID `json:"roomId,omitempty"`
	UserID models.ID `json:"userId"`
}

// StatusUpdate moves a message to a new delivery status.
type StatusUpdate struct {
	RoomID    models.ID            `json:"roomId,omitempty"`
	MessageID models.ID            `json:"messageId"`
	Status    models.MessageStatus `json:"status"`
}

func (Message) Kind() Kind      { return KindMessage }
func (Typing) Kind() Kind       { return KindTyping }
func (StopTyping) Kind() Kind   { return KindStopTyping }
func (StatusUpdate) Kind() Kind { return KindStatusUpdate }

// Room returns the room named in the payload, falling back to the message's own room.
func (e Message) Room() models.ID {
	if e.RoomID.IsZero() {
		return e.Message.RoomID
	}
	return e.RoomID
}
func (e Typing) Room() models.ID       { return e.RoomID }
func (e StopTyping) Room() models.ID   { return e.RoomID }
func (e StatusUpdate) Room() models.ID { return e.RoomID }

func (Message) sealed()      {}
func (Typing) sealed()       {}
func (StopTyping) sealed()   {}
func (StatusUpdate) sealed() {}

// User converts the typing payload into a typing-set entry.
func (e Typing) User() models.TypingUser {
	return models.TypingUser{UserID: e.UserID, UserName: e.UserName, Avatar: e.Avatar}
}

// Handler receives one callback per event kind.
type Handler interface {
	HandleMessage(Message)
	HandleTyping(Typing)
	HandleStopTyping(StopTyping)
	HandleStatusUpdate(StatusUpdate)
}

// Dispatch routes evt to the matching handler method.
func Dispatch(evt Event, h Handler) {
	switch e := evt.(type) {
	case Message:
		h.HandleMessage(e)
	case Typing:
		h.HandleTyping(e)
	case StopTyping:
		h.HandleStopTyping(e)
	case StatusUpdate:
		h.HandleStatusUpdate(e)
	}
}

type envelope struct {
	Type Kind `json:"type"`
}

// Decode parses a frame body into its event variant.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	switch env.Type {
	case KindMessage:
		var e Message
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if e.Message.ID.IsZero() {
			return nil, fmt.Errorf("decode %s: missing message id", env.Type)
		}
		return e, nil
	case KindTyping:
		var e Typing
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if e.UserID.IsZero() {
			return nil, fmt.Errorf("decode %s: missing user id", env.Type)
		}
		return e, nil
	case KindStopTyping:
		var e StopTyping
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if e.UserID.IsZero() {
			return nil, fmt.Errorf("decode %s: missing user id", env.Type)
		}
		return e, nil
	case KindStatusUpdate:
		var e StatusUpdate
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if e.MessageID.IsZero() || !e.Status.Valid() {
			return nil, fmt.Errorf("decode %s: invalid message id or status", env.Type)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// Encode serializes evt with its "type" discriminator.
func Encode(evt Event) ([]byte, error) {
	switch e := evt.(type) {
	case Message:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			Message
		}{KindMessage, e})
	case Typing:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			Typing
		}{KindTyping, e})
	case StopTyping:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			StopTyping
		}{KindStopTyping, e})
	case StatusUpdate:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			StatusUpdate
		}{KindStatusUpdate, e})
	}
	return nil, fmt.Errorf("encode event: unsupported %T", evt)
}
