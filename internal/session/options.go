package session

import (
	"log/slog"
	"time"

	"chat-client/internal/notify"
	"chat-client/internal/rooms"
	"chat-client/internal/storage"
	"chat-client/internal/transport"
)

// DefaultMarkReadLimit bounds concurrent mark-read calls after a history load.
const DefaultMarkReadLimit = 4

// Option configures a Controller.
type Option func(*Controller)

// WithToken sets the realtime token. Without it Start reads storage.KeyToken.
func WithToken(token string) Option {
	return func(c *Controller) {
		c.token = token
	}
}

// WithStorage sets the preference store. Defaults to an in-memory store.
func WithStorage(s storage.Store) Option {
	return func(c *Controller) {
		c.prefs = s
	}
}

// WithNotifier sets where toasts and message alerts go.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l.With("component", "session")
	}
}

// WithTypingDebounce overrides presence.DefaultDebounce.
func WithTypingDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithMarkReadLimit overrides DefaultMarkReadLimit.
func WithMarkReadLimit(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.markReadLimit = n
		}
	}
}

// WithObserver is called after every applied room event.
func WithObserver(o rooms.Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

// WithStateListener is called on every transport state change.
func WithStateListener(l transport.Listener) Option {
	return func(c *Controller) {
		c.stateListener = l
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithIDGenerator replaces the random suffix of temporary message ids.
func WithIDGenerator(gen func() string) Option {
	return func(c *Controller) {
		c.newID = gen
	}
}
