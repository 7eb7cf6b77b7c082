package rooms

import (
	"log/slog"
	"time"

	"chat-client/internal/events"
	"chat-client/internal/models"
	"chat-client/internal/notify"
)

// MessageLog is the store surface the dispatcher writes to.
type MessageLog interface {
	Append(roomID models.ID, msg models.Message) bool
	MarkStatus(roomID, messageID models.ID, status models.MessageStatus) bool
}

// TypingSet is the presence surface the dispatcher writes to.
type TypingSet interface {
	SetTyping(roomID models.ID, user models.TypingUser, ttl time.Duration)
	ClearTyping(roomID, userID models.ID)
}

// UnreadCounter zeroes a room's unread badge.
type UnreadCounter interface {
	ResetUnread(roomID models.ID)
}

// Observer is told about every applied event, after state has been updated.
type Observer func(roomID models.ID, evt events.Event)

// Dispatcher applies room events to local state.
type Dispatcher struct {
	LocalUser models.ID
	Log       MessageLog
	Typing    TypingSet
	Unread    UnreadCounter
	Notifier  notify.Notifier
	Observer  Observer
	Logger    *slog.Logger
}

// ForRoom returns a handler for frames received on roomID's topic. Events
// without a room of their own are applied to roomID.
func (d *Dispatcher) ForRoom(roomID models.ID) events.Handler {
	return roomHandler{d: d, room: roomID}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

type roomHandler struct {
	d    *Dispatcher
	room models.ID
}

func (h roomHandler) target(evt events.Event) models.ID {
	if id := evt.Room(); !id.IsZero() {
		return id
	}
	return h.room
}

func (h roomHandler) observe(roomID models.ID, evt events.Event) {
	if h.d.Observer != nil {
		h.d.Observer(roomID, evt)
	}
}

func (h roomHandler) HandleMessage(e events.Message) {
	roomID := h.target(e)
	msg := e.Message
	msg.RoomID = roomID
	h.d.Log.Append(roomID, msg)
	h.observe(roomID, e)

	if msg.Sender.ID == h.d.LocalUser || h.d.Notifier == nil {
		return
	}
	if err := h.d.Notifier.Incoming(msg); err != nil {
		h.d.logger().Warn("incoming notification failed", "room_id", roomID, "message_id", msg.ID, "error", err)
	}
}

func (h roomHandler) HandleTyping(e events.Typing) {
	roomID := h.target(e)
	if e.UserID == h.d.LocalUser {
		return
	}
	h.d.Typing.SetTyping(roomID, e.User(), time.Duration(e.TTLMillis)*time.Millisecond)
	h.observe(roomID, e)
}

func (h roomHandler) HandleStopTyping(e events.StopTyping) {
	roomID := h.target(e)
	h.d.Typing.ClearTyping(roomID, e.UserID)
	h.observe(roomID, e)
}

func (h roomHandler) HandleStatusUpdate(e events.StatusUpdate) {
	roomID := h.target(e)
	h.d.Log.MarkStatus(roomID, e.MessageID, e.Status)
	if e.Status == models.StatusRead && h.d.Unread != nil {
		h.d.Unread.ResetUnread(roomID)
	}
	h.observe(roomID, e)
}
