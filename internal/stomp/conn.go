package stomp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	gostomp "github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed for the CONNECTED reply when the context has no deadline.
	handshakeWait = 10 * time.Second

	// Time allowed for RECEIPT replies to UNSUBSCRIBE and DISCONNECT.
	receiptWait = 5 * time.Second

	// Missed heart-beats tolerated before the connection is considered dead.
	heartBeatGrace = 2
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("stomp connection closed")

// Message is a MESSAGE frame delivered to a subscription.
type Message struct {
	Destination  string
	Subscription string
	ID           string
	ContentType  string
	Body         []byte
}

// Handler consumes messages for one subscription. Messages of a
// subscription are delivered in order on a goroutine owned by it.
type Handler func(Message)

// Options configures Dial.
type Options struct {
	// Header is sent with the WebSocket handshake.
	Header http.Header
	// ConnectHeaders are added to the CONNECT frame.
	ConnectHeaders map[string]string
	// HeartBeat is the interval offered in both directions. Zero disables heart-beats.
	HeartBeat time.Duration
	Dialer    *websocket.Dialer
	Logger    *slog.Logger
}

// Conn is a go-stomp client session carried by a single WebSocket.
type Conn struct {
	client *gostomp.Conn
	stream *wsStream
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*gostomp.Subscription
}

// Dial opens the WebSocket at url and performs the CONNECT handshake.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.Subprotocols = Subprotocols
		dialer = &d
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stomp")

	ws, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", redact(url), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", redact(url), err)
	}
	stream := newWSStream(ws)

	connOpts := []func(*gostomp.Conn) error{
		gostomp.ConnOpt.Host(ws.RemoteAddr().String()),
		gostomp.ConnOpt.AcceptVersion(gostomp.V11, gostomp.V12),
		gostomp.ConnOpt.HeartBeat(opts.HeartBeat, opts.HeartBeat),
		gostomp.ConnOpt.HeartBeatGracePeriodMultiplier(heartBeatGrace),
		gostomp.ConnOpt.UnsubscribeReceiptTimeout(receiptWait),
		gostomp.ConnOpt.DisconnectReceiptTimeout(receiptWait),
		gostomp.ConnOpt.Logger(stompLogger{logger: logger}),
	}
	for k, v := range opts.ConnectHeaders {
		connOpts = append(connOpts, gostomp.ConnOpt.Header(k, v))
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(handshakeWait)
	}
	ws.SetReadDeadline(deadline)
	client, err := gostomp.Connect(stream, connOpts...)
	if err != nil {
		ws.Close()
		var brokerErr gostomp.Error
		if errors.As(err, &brokerErr) && brokerErr.Frame != nil && brokerErr.Frame.Command == frame.ERROR {
			return nil, BrokerError(brokerErr.Frame)
		}
		return nil, fmt.Errorf("stomp handshake: %w", err)
	}
	ws.SetReadDeadline(time.Time{})

	logger.Debug("stomp session established",
		"version", client.Version(),
		"server", client.Server(),
		"heartbeat", opts.HeartBeat)

	return &Conn{
		client: client,
		stream: stream,
		logger: logger,
		subs:   make(map[string]*gostomp.Subscription),
	}, nil
}

// Subscribe registers h for destination and returns the subscription id.
func (c *Conn) Subscribe(destination string, h Handler) (string, error) {
	if c.closed() {
		return "", fmt.Errorf("subscribe %s: %w", destination, ErrClosed)
	}
	sub, err := c.client.Subscribe(destination, gostomp.AckAuto)
	if err != nil {
		return "", fmt.Errorf("subscribe %s: %w", destination, c.mapErr(err))
	}
	c.mu.Lock()
	c.subs[sub.Id()] = sub
	c.mu.Unlock()

	go c.deliver(sub, h)
	return sub.Id(), nil
}

// Unsubscribe cancels a subscription. Unknown ids are ignored.
func (c *Conn) Unsubscribe(id string) error {
	c.mu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if !ok || c.closed() {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, gostomp.ErrCompletedSubscription) {
		return fmt.Errorf("unsubscribe %s: %w", id, c.mapErr(err))
	}
	return nil
}

// Send publishes body to destination. A content-type entry in headers
// overrides the JSON default.
func (c *Conn) Send(destination string, body []byte, headers map[string]string) error {
	if c.closed() {
		return fmt.Errorf("send %s: %w", destination, ErrClosed)
	}
	contentType := "application/json"
	var opts []func(*frame.Frame) error
	for k, v := range headers {
		if k == HeaderContentType {
			contentType = v
			continue
		}
		opts = append(opts, gostomp.SendOpt.Header(k, v))
	}
	if err := c.client.Send(destination, contentType, body, opts...); err != nil {
		return fmt.Errorf("send %s: %w", destination, c.mapErr(err))
	}
	return nil
}

// Disconnect sends DISCONNECT, waits briefly for the receipt and closes the
// socket. Safe to call more than once.
func (c *Conn) Disconnect() error {
	if c.closed() {
		return nil
	}
	c.stream.fail(ErrClosed)
	if err := c.client.Disconnect(); err != nil {
		c.logger.Debug("disconnect without receipt", "error", err)
	}
	return c.stream.Close()
}

// Done is closed once the connection has terminated.
func (c *Conn) Done() <-chan struct{} { return c.stream.done }

// Err reports why the connection terminated. It is nil while the connection is open.
func (c *Conn) Err() error {
	select {
	case <-c.stream.done:
		return c.stream.cause()
	default:
		return nil
	}
}

func (c *Conn) closed() bool {
	select {
	case <-c.stream.done:
		return true
	default:
		return false
	}
}

func (c *Conn) mapErr(err error) error {
	if errors.Is(err, gostomp.ErrAlreadyClosed) || errors.Is(err, gostomp.ErrClosedUnexpectedly) {
		return ErrClosed
	}
	return err
}

func (c *Conn) deliver(sub *gostomp.Subscription, h Handler) {
	for msg := range sub.C {
		if msg.Err != nil {
			if sub.Active() {
				c.logger.Debug("subscription error", "subscription", sub.Id(), "destination", sub.Destination(), "error", msg.Err)
			}
			continue
		}
		h(Message{
			Destination:  msg.Destination,
			Subscription: sub.Id(),
			ID:           msg.Header.Get(frame.MessageId),
			ContentType:  msg.ContentType,
			Body:         msg.Body,
		})
	}
}
