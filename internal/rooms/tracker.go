// Package rooms keeps at most one room topic subscribed and applies the
// events it delivers.
package rooms

import (
	"errors"
	"log/slog"
	"sync"

	"chat-client/internal/events"
	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/transport"
)

// Subscriber is the part of the transport the tracker drives.
type Subscriber interface {
	Connected() bool
	Subscribe(destination string, handler transport.FrameHandler) (*transport.Subscription, error)
	Unsubscribe(sub *transport.Subscription) error
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l.With("component", "rooms")
	}
}

// Tracker owns the single active room subscription.
type Tracker struct {
	transport Subscriber
	logger    *slog.Logger

	mu     sync.Mutex
	active models.ID
	handle *transport.Subscription
}

// NewTracker creates a tracker with nothing subscribed.
func NewTracker(sub Subscriber, opts ...Option) *Tracker {
	t := &Tracker{
		transport: sub,
		logger:    slog.Default().With("component", "rooms"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SubscribeRoom replaces the current subscription with one on roomID's topic.
// Decoded events go to handler; frames that fail to decode are dropped.
func (t *Tracker) SubscribeRoom(roomID models.ID, handler events.Handler) error {
	if !t.transport.Connected() {
		t.logger.Warn("cannot subscribe while disconnected", "room_id", roomID)
		return transport.ErrNotConnected
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handle != nil {
		if err := t.transport.Unsubscribe(t.handle); err != nil {
			t.logger.Warn("unsubscribe previous room failed", "room_id", t.active, "error", err)
		}
		t.handle = nil
		t.active = ""
	}

	sub, err := t.transport.Subscribe(transport.RoomTopic(roomID), t.frameHandler(roomID, handler))
	if err != nil {
		return err
	}
	t.handle = sub
	t.active = roomID
	t.logger.Debug("subscribed", "room_id", roomID, "destination", sub.Destination)
	return nil
}

// Unsubscribe drops the current subscription, if any.
func (t *Tracker) Unsubscribe() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handle == nil {
		return nil
	}
	err := t.transport.Unsubscribe(t.handle)
	t.handle = nil
	t.active = ""
	return err
}

// Reset forgets the handle without talking to the transport. Use it after the
// connection that owned the handle has gone away.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.handle = nil
	t.active = ""
	t.mu.Unlock()
}

// ActiveRoom reports the subscribed room, or the zero ID.
func (t *Tracker) ActiveRoom() models.ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Tracker) frameHandler(roomID models.ID, handler events.Handler) transport.FrameHandler {
	return func(body []byte) {
		evt, err := events.Decode(body)
		if err != nil {
			result := "malformed"
			if errors.Is(err, events.ErrUnknownEvent) {
				result = "unknown"
			}
			observability.IncFrame("none", result)
			t.logger.Warn("dropping room frame", "room_id", roomID, "error", err)
			return
		}
		observability.IncFrame(string(evt.Kind()), "ok")
		events.Dispatch(evt, handler)
	}
}
