package presence

import (
	"log/slog"
	"sync"
	"time"

	"chat-client/internal/events"
	"chat-client/internal/models"
	"chat-client/internal/transport"
)

// DefaultDebounce is the quiet period after the last keystroke before
// STOP_TYPING is published.
const DefaultDebounce = 2 * time.Second

// Publisher is the transport surface the broadcaster needs.
type Publisher interface {
	Publish(destination string, payload any, headers map[string]string) error
}

// Broadcaster publishes the local user's typing state.
type Broadcaster struct {
	publisher Publisher
	user      models.TypingUser
	debounce  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	timers map[models.ID]*time.Timer
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) BroadcasterOption {
	return func(b *Broadcaster) {
		b.debounce = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		b.logger = l.With("component", "typing")
	}
}

// NewBroadcaster creates a broadcaster for user.
func NewBroadcaster(publisher Publisher, user models.TypingUser, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		publisher: publisher,
		user:      user,
		debounce:  DefaultDebounce,
		logger:    slog.Default().With("component", "typing"),
		timers:    make(map[models.ID]*time.Timer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Keystroke publishes TYPING and restarts the debounce timer for the room.
// The advertised TTL is twice the debounce so receivers drop the indicator
// if STOP_TYPING never arrives.
func (b *Broadcaster) Keystroke(roomID models.ID) error {
	b.mu.Lock()
	if t, ok := b.timers[roomID]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(b.debounce, func() {
		b.mu.Lock()
		current := b.timers[roomID] == timer
		if current {
			delete(b.timers, roomID)
		}
		b.mu.Unlock()
		if !current {
			return
		}
		if err := b.publishStop(roomID); err != nil {
			b.logger.Warn("stop typing not delivered", "room_id", roomID, "error", err)
		}
	})
	b.timers[roomID] = timer
	b.mu.Unlock()

	return b.publish(roomID, events.Typing{
		RoomID:    roomID,
		UserID:    b.user.UserID,
		UserName:  b.user.UserName,
		Avatar:    b.user.Avatar,
		TTLMillis: (2 * b.debounce).Milliseconds(),
	})
}

// Stop publishes STOP_TYPING immediately if the room has a pending timer.
func (b *Broadcaster) Stop(roomID models.ID) error {
	b.mu.Lock()
	t, ok := b.timers[roomID]
	if ok {
		t.Stop()
		delete(b.timers, roomID)
	}
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return b.publishStop(roomID)
}

// Close cancels every pending timer without publishing.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
}

func (b *Broadcaster) publishStop(roomID models.ID) error {
	return b.publish(roomID, events.StopTyping{RoomID: roomID, UserID: b.user.UserID})
}

func (b *Broadcaster) publish(roomID models.ID, evt events.Event) error {
	data, err := events.Encode(evt)
	if err != nil {
		return err
	}
	return b.publisher.Publish(transport.TypingDestination(roomID), data, nil)
}
