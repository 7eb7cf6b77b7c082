// Package transport owns the single broker connection of a chat session.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"chat-client/internal/observability"
	"chat-client/internal/stomp"
)

// ErrNotConnected is returned when an operation needs a live connection.
var ErrNotConnected = errors.New("transport not connected")

// State of the broker connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateLost is terminal until the next explicit Connect.
	StateLost
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLost:
		return "lost"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Listener observes state changes. It is never called with the manager's lock held.
type Listener func(State)

// FrameHandler receives the body of each frame delivered to a subscription.
type FrameHandler func(body []byte)

// ReconnectPolicy bounds automatic reconnection.
type ReconnectPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// DefaultReconnectPolicy retries for roughly two minutes before giving up.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		MaxRetries:      8,
	}
}

// Subscription is a handle returned by Subscribe. Handles from a dropped
// connection are stale and unsubscribing them does nothing.
type Subscription struct {
	Destination string
	id          string
	generation  uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithReconnectPolicy overrides DefaultReconnectPolicy.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l.With("component", "transport")
	}
}

// Manager maintains one connection per session and brokers publish/subscribe.
type Manager struct {
	dialer Dialer
	policy ReconnectPolicy
	logger *slog.Logger

	mu              sync.Mutex
	state           State
	session         Session
	generation      uint64
	token           string
	listener        Listener
	subs            map[*Subscription]struct{}
	closed          bool
	dialing         bool
	reconnecting    bool
	reconnectSeq    uint64
	cancelReconnect context.CancelFunc
}

// NewManager creates a disconnected manager.
func NewManager(dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer: dialer,
		policy: DefaultReconnectPolicy(),
		logger: slog.Default().With("component", "transport"),
		subs:   make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect establishes the connection. It returns immediately when already
// connected or while a reconnect is in progress. A failed first attempt hands
// over to the reconnect loop and is also reported to the caller.
func (m *Manager) Connect(ctx context.Context, token string, listener Listener) error {
	m.mu.Lock()
	if listener != nil {
		m.listener = listener
	}
	if m.state == StateConnected || m.dialing || m.reconnecting {
		m.mu.Unlock()
		return nil
	}
	m.token = token
	m.closed = false
	m.dialing = true
	m.mu.Unlock()

	m.setState(StateConnecting)
	sess, err := m.dialer.Dial(ctx, token)
	m.mu.Lock()
	m.dialing = false
	m.mu.Unlock()
	if err != nil {
		m.logger.Warn("connect failed", "error", err)
		m.setState(StateDisconnected)
		m.startReconnect()
		return fmt.Errorf("connect: %w", err)
	}
	m.attach(sess)
	return nil
}

// Connected reports whether a session is live.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Publish sends payload to destination. []byte payloads are sent verbatim,
// anything else is JSON encoded. Nothing is queued while disconnected.
func (m *Manager) Publish(destination string, payload any, headers map[string]string) error {
	sess := m.current()
	if sess == nil {
		m.logger.Warn("publish skipped, not connected", "destination", destination)
		observability.IncPublishFailure("disconnected")
		return ErrNotConnected
	}

	body, ok := payload.([]byte)
	if !ok {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encode payload for %s: %w", destination, err)
		}
	}
	if err := sess.Send(destination, body, headers); err != nil {
		m.logger.Warn("publish failed", "destination", destination, "error", err)
		observability.IncPublishFailure("send")
		return err
	}
	return nil
}

// Subscribe registers handler for destination on the current session.
func (m *Manager) Subscribe(destination string, handler FrameHandler) (*Subscription, error) {
	m.mu.Lock()
	sess, gen := m.session, m.generation
	m.mu.Unlock()
	if sess == nil {
		return nil, ErrNotConnected
	}

	id, err := sess.Subscribe(destination, func(msg stomp.Message) { handler(msg.Body) })
	if err != nil {
		return nil, err
	}
	sub := &Subscription{Destination: destination, id: id, generation: gen}

	m.mu.Lock()
	if m.generation == gen {
		m.subs[sub] = struct{}{}
	}
	m.mu.Unlock()
	return sub, nil
}

// Unsubscribe cancels sub. Nil and stale handles are ignored.
func (m *Manager) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return nil
	}
	m.mu.Lock()
	delete(m.subs, sub)
	sess := m.session
	stale := sess == nil || sub.generation != m.generation
	m.mu.Unlock()
	if stale {
		return nil
	}
	return sess.Unsubscribe(sub.id)
}

// Disconnect tears down subscriptions, closes the session and stops any
// reconnect loop. It is idempotent.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.closed = true
	cancel := m.cancelReconnect
	m.cancelReconnect = nil
	m.reconnecting = false
	m.reconnectSeq++
	sess := m.session
	subs := m.subs
	m.session = nil
	m.subs = make(map[*Subscription]struct{})
	m.generation++
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if sess != nil {
		for sub := range subs {
			if uerr := sess.Unsubscribe(sub.id); uerr != nil {
				m.logger.Debug("unsubscribe on disconnect failed", "destination", sub.Destination, "error", uerr)
			}
		}
		err = sess.Disconnect()
	}
	m.setState(StateDisconnected)
	return err
}

func (m *Manager) current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Manager) attach(sess Session) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = sess.Disconnect()
		return
	}
	m.session = sess
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	m.logger.Info("connected")
	m.setState(StateConnected)
	go m.watch(sess, gen)
}

func (m *Manager) watch(sess Session, gen uint64) {
	<-sess.Done()

	m.mu.Lock()
	if m.closed || m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.subs = make(map[*Subscription]struct{})
	m.mu.Unlock()

	m.logger.Warn("connection dropped", "error", sess.Err())
	m.setState(StateDisconnected)
	m.startReconnect()
}

func (m *Manager) startReconnect() {
	m.mu.Lock()
	if m.closed || m.reconnecting {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.reconnecting = true
	m.reconnectSeq++
	m.cancelReconnect = cancel
	seq, token := m.reconnectSeq, m.token
	m.mu.Unlock()

	go m.reconnect(ctx, token, seq)
}

func (m *Manager) reconnect(ctx context.Context, token string, seq uint64) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.policy.InitialInterval
	b.MaxInterval = m.policy.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, m.policy.MaxRetries), ctx)

	var sess Session
	attempt := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		m.setState(StateConnecting)
		s, err := m.dialer.Dial(ctx, token)
		if err != nil {
			observability.IncReconnectAttempt("failure")
			return err
		}
		sess = s
		return nil
	}
	notify := func(err error, next time.Duration) {
		m.logger.Warn("reconnect attempt failed", "error", err, "retry_in", next)
	}
	err := backoff.RetryNotify(attempt, policy, notify)

	m.mu.Lock()
	stillCurrent := m.reconnectSeq == seq
	if stillCurrent {
		m.reconnecting = false
		m.cancelReconnect = nil
	}
	m.mu.Unlock()

	if !stillCurrent || ctx.Err() != nil {
		if sess != nil {
			_ = sess.Disconnect()
		}
		return
	}
	if err != nil {
		m.logger.Error("giving up reconnecting", "error", err, "max_retries", m.policy.MaxRetries)
		m.setState(StateLost)
		return
	}
	observability.IncReconnectAttempt("success")
	m.attach(sess)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	listener := m.listener
	m.mu.Unlock()

	observability.SetConnectionState(int(s))
	if changed && listener != nil {
		listener(s)
	}
}
