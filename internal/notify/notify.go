// Package notify surfaces toasts and incoming-message alerts to the user.
package notify

import (
	"fmt"
	"io"
	"sync"

	"chat-client/internal/models"
)

// Level is the severity of a toast.
type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notifier shows transient notices and alerts for messages from other users.
type Notifier interface {
	Toast(level Level, text string)
	Incoming(msg models.Message) error
}

// Terminal writes notices to an io.Writer, ringing the bell for incoming messages.
type Terminal struct {
	mu   sync.Mutex
	out  io.Writer
	bell bool
}

// NewTerminal creates a Terminal writing to out.
func NewTerminal(out io.Writer, bell bool) *Terminal {
	return &Terminal{out: out, bell: bell}
}

func (t *Terminal) Toast(level Level, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "[%s] %s\n", level, text)
}

func (t *Terminal) Incoming(msg models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	prefix := ""
	if t.bell {
		prefix = "\a"
	}
	name := msg.Sender.Name
	if name == "" {
		name = msg.Sender.ID.String()
	}
	_, err := fmt.Fprintf(t.out, "%s<< room %s | %s: %s\n", prefix, msg.RoomID, name, msg.Content)
	return err
}

// Discard drops everything.
type Discard struct{}

func (Discard) Toast(Level, string)            {}
func (Discard) Incoming(models.Message) error { return nil }
